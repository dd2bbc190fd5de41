// Package first models the FIRST (Fatality and Injury Reporting System
// Tool) query interface on cdan.dot.gov: endpoints, the SAS query string,
// and the state manifest.
package first

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoints of the FIRST application.
const (
	Base         = "https://cdan.dot.gov"
	JobURL       = Base + "/SASJobExecution/?sso_guest=true"
	QueryPageURL = Base + "/query"
	Program      = "/Public/OTRA/Apps/FIRST/FIRST"
	AppHost      = "cdan.dot.gov"
)

// DownloadLinkSelector matches the report download anchor once the SAS job
// has produced its workbook.
const DownloadLinkSelector = `a[download$=".xlsx"], a[href$=".xlsx"], a[href*="/files/files/"]`

// releaseDate is the FIRST data release the query pins.
const releaseDate = "Version 9.2.1, released Nov 13, 2025"

// Query describes one impaired-driving report request: fatalities with an
// impaired driver, person type 1, split by year and month.
type Query struct {
	StateID  int
	FromYear int
	ToYear   int
}

// NewQuery returns the standard 2010-2023 query for a state.
func NewQuery(stateID int) Query {
	return Query{StateID: stateID, FromYear: 2010, ToYear: 2023}
}

// SASQueryString renders the query in the exact shape the SAS job expects,
// including the trailing comma after the year list.
func (q Query) SASQueryString() string {
	var years strings.Builder
	for y := q.FromYear; y <= q.ToYear; y++ {
		years.WriteString(fmt.Sprintf("%d,", y))
	}

	var b strings.Builder
	b.WriteString("&topic_num=26&metric_num=33&metrictype_num=37")
	b.WriteString("&CrashYear=")
	b.WriteString(years.String())
	b.WriteString(fmt.Sprintf("&State=%d&A_PTYPE=1&DRIMPAIR_A=9&TableRows=YEAR&TableCols=MONTH", q.StateID))
	b.WriteString("&ReleaseDate=")
	b.WriteString(releaseDate)
	b.WriteString(fmt.Sprintf("&ReportType=1&Criteria=Years: %d-%d", q.FromYear, q.ToYear))
	return b.String()
}

// Form returns the POST body fields for the SAS job endpoint.
func (q Query) Form() url.Values {
	return url.Values{
		"SASQueryString": {q.SASQueryString()},
		"_program":       {Program},
		"_apphostname":   {AppHost},
	}
}

// ResolveRef resolves a download href against the FIRST origin.
func ResolveRef(href string) string {
	switch {
	case strings.HasPrefix(href, "/"):
		return Base + href
	case strings.HasPrefix(href, "http"):
		return href
	default:
		return Base + "/" + href
	}
}
