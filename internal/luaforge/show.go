package luaforge

import (
	"os"
)

// showLocation lists what the manifest at opts.Location records.
func showLocation(opts Options, report *Reporter) {
	loc := opts.Location
	if _, err := os.Stat(loc); err != nil {
		report.Note("%s does not exist.", loc)
		return
	}

	m := LoadManifest(loc)
	if m.Empty() {
		report.Note("No programs installed in %s.", loc)
		return
	}

	report.Note("Programs installed in %s:", loc)
	for _, v := range variants {
		if id, ok := m.Get(v.Name); ok {
			showIdentity(report, id)
		}
	}
}

func showIdentity(report *Reporter, id Identity) {
	title := id.Name
	switch {
	case id.Version != "":
		title += " " + id.Version
	case id.MajorVersion != "" && id.Name != luajitVariant.Title && id.Name != moonjitVariant.Title:
		title += " " + id.MajorVersion
	}

	switch Kind(id.Source) {
	case KindRelease:
		report.Note("%s", title)
	case KindGit:
		report.Note("%s @%s (cloned from %s)", title, shortCommit(id.Commit), id.Repo)
	default:
		report.Note("%s (from local sources)", title)
	}

	for _, opt := range id.options() {
		report.Note("    %s: %s", opt[0], opt[1])
	}
}
