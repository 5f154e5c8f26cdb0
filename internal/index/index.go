package index

import "github.com/starford/mdref/internal/models"

// LinkGraph is the storage behind the link-graph export. Sync, Watch, and
// the service layer depend on it rather than on *DB.
type LinkGraph interface {
	ReplaceDocument(doc models.DocumentMeta, links []models.Link) error
	DeleteDocument(path string) error
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	Links() ([]models.Link, error)
	UpdateTargets(links []models.Link) error
	Backlinks(target string) ([]models.Link, error)
	Stats() (Stats, error)
	Close() error
}

var _ LinkGraph = (*DB)(nil)
