// Package connectors holds article sources that the importer reads from.
// Each subpackage implements driven.ArticleSource for one kind of location.
package connectors
