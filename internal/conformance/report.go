package conformance

import (
	"fmt"
	"io"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
)

// Status classifies a case result.
type Status string

// Case statuses. Fail means the backend produced wrong values or rejected
// the model; error means the case could not be executed.
const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusError Status = "error"
	StatusSkip  Status = "skip"
)

// Result is the outcome of one case.
type Result struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Report collects results in case order.
type Report struct {
	Results []Result       `json:"results"`
	Counts  map[Status]int `json:"counts"`
}

func newReport(results []Result) *Report {
	counts := map[Status]int{StatusPass: 0, StatusFail: 0, StatusError: 0, StatusSkip: 0}
	for _, r := range results {
		counts[r.Status]++
	}
	return &Report{Results: results, Counts: counts}
}

// OK reports whether no case failed or errored.
func (r *Report) OK() bool {
	return r.Counts[StatusFail] == 0 && r.Counts[StatusError] == 0
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteTable writes one row per case followed by the totals.
func (r *Report) WriteTable(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Case", "Status", "Time", "Message"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, res := range r.Results {
		table.Append([]string{res.Name, string(res.Status), res.Duration.Round(time.Millisecond).String(), res.Message})
	}
	table.SetFooter([]string{
		strconv.Itoa(len(r.Results)) + " cases",
		fmt.Sprintf("%d pass", r.Counts[StatusPass]),
		fmt.Sprintf("%d fail/%d error", r.Counts[StatusFail], r.Counts[StatusError]),
		fmt.Sprintf("%d skip", r.Counts[StatusSkip]),
	})
	table.Render()
	return nil
}
