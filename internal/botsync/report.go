package botsync

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize/english"
)

type PlanEntry struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

// PlanReport is the printable form of a Plan.
type PlanReport struct {
	Delete []PlanEntry `json:"delete"`
	Update []PlanEntry `json:"update"`
	Create []PlanEntry `json:"create"`
}

func NewPlanReport(plan Plan) PlanReport {
	return PlanReport{
		Delete: planEntries(plan.ToDelete),
		Update: planEntries(plan.ToUpdate),
		Create: planEntries(plan.ToCreate),
	}
}

func (r PlanReport) Total() int {
	return len(r.Delete) + len(r.Update) + len(r.Create)
}

func (r PlanReport) Summary() string {
	if r.Total() == 0 {
		return "no flow changes"
	}
	return fmt.Sprintf("%s to sync: %d to delete, %d to update, %d to create",
		english.Plural(r.Total(), "flow", ""), len(r.Delete), len(r.Update), len(r.Create))
}

func (r PlanReport) WriteText(w io.Writer) error {
	for _, entry := range r.Delete {
		if _, err := fmt.Fprintf(w, "- delete %s (id %s)\n", entry.Name, entry.ID); err != nil {
			return err
		}
	}
	for _, entry := range r.Update {
		if _, err := fmt.Fprintf(w, "~ update %s (id %s)\n", entry.Name, entry.ID); err != nil {
			return err
		}
	}
	for _, entry := range r.Create {
		if _, err := fmt.Fprintf(w, "+ create %s\n", entry.Name); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, r.Summary())
	return err
}

func (r PlanReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func planEntries(flows []Flow) []PlanEntry {
	entries := make([]PlanEntry, 0, len(flows))
	for _, flow := range flows {
		entries = append(entries, PlanEntry{Name: flow.Name(), ID: flow.ID()})
	}
	return entries
}
