package integrity

import "podsig/internal/feed"

// Row is one episode with the hash each feed declares for it.
type Row struct {
	EpisodeID string
	// Hashes maps feed name to declared hash. Missing feeds are absent.
	Hashes map[string]string
}

// Table is the side-by-side declared-hash view.
type Table struct {
	Feeds []string
	Rows  []Row
}

// Cell returns the hash feedName declares for row i, or "".
func (t Table) Cell(i int, feedName string) string {
	if i < 0 || i >= len(t.Rows) {
		return ""
	}
	return t.Rows[i].Hashes[feedName]
}

// Declared builds the table with episodes in first-seen order across feeds.
// A feed listing an episode twice keeps the first declaration.
func Declared(feeds []*feed.Feed) Table {
	table := Table{}
	index := make(map[string]int)
	for _, f := range feeds {
		if f == nil {
			continue
		}
		table.Feeds = append(table.Feeds, f.Name)
		for _, item := range f.Items {
			i, ok := index[item.EpisodeID]
			if !ok {
				i = len(table.Rows)
				index[item.EpisodeID] = i
				table.Rows = append(table.Rows, Row{EpisodeID: item.EpisodeID, Hashes: map[string]string{}})
			}
			if _, dup := table.Rows[i].Hashes[f.Name]; !dup {
				table.Rows[i].Hashes[f.Name] = item.DeclaredHash
			}
		}
	}
	return table
}
