package models

import "time"

// Article is arXiv metadata as scraped by the external harvester. The
// evaluation core treats articles as immutable reference data.
type Article struct {
	ID         string    `json:"article_id" db:"article_id"`
	Title      string    `json:"title" db:"title"`
	Abstract   string    `json:"abstract" db:"abstract"`
	Datestamp  time.Time `json:"datestamp" db:"datestamp"`
	Authors    []string  `json:"authors" db:"authors"`
	Categories []string  `json:"categories" db:"categories"`
}
