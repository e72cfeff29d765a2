package mcp

import (
	"github.com/custodia-labs/annotext/internal/core/ports/driving"
)

// Ports aggregates the driving ports the MCP server needs.
type Ports struct {
	// Search answers article and comment queries.
	Search driving.SearchService

	// Articles reads articles and rows. Optional.
	Articles driving.ArticleService

	// Comments lists an article's comments. Optional.
	Comments driving.CommentService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	return nil
}
