package main

import (
	"flag"
	"fmt"

	"github.com/scoutreports/osmsync/pkg/osm"
	"github.com/scoutreports/osmsync/pkg/progress"
)

func main() {
	// Usage: go run *.go -settings "secret.json" -section "Kea"

	settingsFlag := flag.String("settings", "", "Path to the JSON settings file (defaults to ~/"+osm.DefaultSettingsName+")")
	sectionFlag := flag.String("section", "", "Section display name")

	flag.Parse()

	if *sectionFlag == "" {
		fmt.Println("Section is required. Please provide the section using -section flag.")
		return
	}

	settings, err := osm.LoadSettings(*settingsFlag)
	if err != nil {
		fmt.Println(err)
		return
	}

	sess := osm.NewSession(settings)
	if err := sess.Authenticate(); err != nil {
		fmt.Println(err)
		return
	}

	mgr := &osm.Manager{}
	if err := mgr.Load(sess); err != nil {
		fmt.Println(err)
		return
	}

	section := mgr.FindSection(*sectionFlag)
	if section == nil {
		fmt.Println("Unknown section:", *sectionFlag)
		return
	}
	term := section.CurrentTerm()
	if term == nil {
		fmt.Println("Currently not in a term")
		return
	}

	if err := term.LoadBadges(sess); err != nil {
		fmt.Println(err)
		return
	}

	for _, badge := range term.Badges {
		if err := badge.LoadProgress(sess); err != nil {
			fmt.Println(err)
			return
		}
		summary := progress.Summary(badge.Progress, len(badge.Parts))
		fmt.Printf("%s: %.1f%%\n", badge, summary)
	}
}
