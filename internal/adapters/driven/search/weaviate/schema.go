package weaviate

import (
	"github.com/weaviate/weaviate/entities/models"
)

// Class names.
const (
	ArticleClass = "Article"
	CommentClass = "Comment"
)

func filterable() *bool {
	b := true
	return &b
}

func articleSchema() *models.Class {
	return &models.Class{
		Class:       ArticleClass,
		Description: "An article of the text library.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{Name: "articleId", DataType: []string{"text"}, Tokenization: "field", IndexFilterable: filterable()},
			{Name: "title", DataType: []string{"text"}, Tokenization: "word"},
			{Name: "text", DataType: []string{"text"}, Tokenization: "word"},
			{Name: "description", DataType: []string{"text"}, Tokenization: "word"},
			{Name: "author", DataType: []string{"text"}, Tokenization: "field", IndexFilterable: filterable()},
			{Name: "tags", DataType: []string{"text[]"}, Tokenization: "field", IndexFilterable: filterable()},
			{Name: "date", DataType: []string{"date"}, IndexFilterable: filterable()},
		},
	}
}

func commentSchema() *models.Class {
	return &models.Class{
		Class:       CommentClass,
		Description: "A comment anchored to a row of an article.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{Name: "commentId", DataType: []string{"text"}, Tokenization: "field", IndexFilterable: filterable()},
			{Name: "articleId", DataType: []string{"text"}, Tokenization: "field", IndexFilterable: filterable()},
			{Name: "content", DataType: []string{"text"}, Tokenization: "word"},
			{Name: "author", DataType: []string{"text"}, Tokenization: "field", IndexFilterable: filterable()},
			{Name: "date", DataType: []string{"date"}, IndexFilterable: filterable()},
		},
	}
}
