package records

import (
	"github.com/dmitrijs2005/journalsync/internal/models"
	"github.com/hashicorp/go-memdb"
)

const (
	idxID     = "id"
	idxUserID = "user_id"
)

func recordTable(name string) *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: name,
		Indexes: map[string]*memdb.IndexSchema{
			idxID: {
				Name:   idxID,
				Unique: true,
				Indexer: &memdb.CompoundIndex{
					Indexes: []memdb.Indexer{
						&memdb.StringFieldIndex{Field: "UserID"},
						&memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
			idxUserID: {
				Name:    idxUserID,
				Indexer: &memdb.StringFieldIndex{Field: "UserID"},
			},
		},
	}
}

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		models.EntityJournals:     recordTable(models.EntityJournals),
		models.EntityContent:      recordTable(models.EntityContent),
		models.EntityAssociations: recordTable(models.EntityAssociations),
		models.EntityMedia:        recordTable(models.EntityMedia),
	},
}
