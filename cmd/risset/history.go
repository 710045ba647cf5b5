package main

import (
	"fmt"

	"github.com/csound-plugins/risset/internal/errors"
	"github.com/csound-plugins/risset/internal/journal"
)

type historyCmd struct {
	Plugin string `help:"Show only the history of this plugin."`
	Limit  int    `default:"50" help:"Maximum number of entries to show."`
}

// Run prints the recorded operations, newest first.
func (c *historyCmd) Run(a *app) error {
	jnl, err := journal.Open(a.cfg.JournalPath())
	if err != nil {
		return errors.Wrap(err, errors.KindIO, "could not open the journal")
	}
	defer jnl.Close()

	entries, err := jnl.List(a.ctx, c.Plugin, c.Limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No operations recorded")
		return nil
	}
	for _, entry := range entries {
		line := fmt.Sprintf("%s  %-9s %-20s %s",
			entry.Time.Format("2006-01-02 15:04"), entry.Operation, entry.Plugin, entry.Version)
		if entry.Detail != "" {
			line += "  (" + entry.Detail + ")"
		}
		fmt.Println(line)
	}
	return nil
}
