package domain

// SchemaVersion is the layout version written by this build. Stores holding an
// older version are upgraded on open; newer versions are refused.
const SchemaVersion = 3

// Collection names double as persistence bucket names.
const (
	CollectionRecommendations = "recommendations"
	CollectionProducts        = "products"
	CollectionClients         = "clients"
	CollectionUserProfiles    = "userProfiles"
)

// Collection declares the keys and secondary indexes of one record collection.
// A composite index is written as "[a+b]".
type Collection struct {
	Name       string
	PrimaryKey string
	Unique     []string
	Indexes    []string
}

// HasIndex reports whether field is declared as a unique or secondary index.
func (c Collection) HasIndex(field string) bool {
	for _, idx := range c.Unique {
		if idx == field {
			return true
		}
	}
	for _, idx := range c.Indexes {
		if idx == field {
			return true
		}
	}
	return false
}

// Schema is a versioned set of collection declarations.
type Schema struct {
	Version     int
	Collections []Collection
}

// Collection looks up a declaration by name.
func (s Schema) Collection(name string) (Collection, bool) {
	for _, c := range s.Collections {
		if c.Name == name {
			return c, true
		}
	}
	return Collection{}, false
}

// CurrentSchema returns the collection layout for SchemaVersion.
func CurrentSchema() Schema {
	return Schema{
		Version: SchemaVersion,
		Collections: []Collection{
			{
				Name:       CollectionRecommendations,
				PrimaryKey: "id",
				Indexes:    []string{"ownerId", "date", "status", "nationalId", "syncStatus", "[ownerId+date]"},
			},
			{
				Name:       CollectionProducts,
				PrimaryKey: "id",
				Unique:     []string{"name"},
				Indexes:    []string{"syncStatus"},
			},
			{
				Name:       CollectionClients,
				PrimaryKey: "nationalId",
				Unique:     []string{"nationalId"},
				Indexes:    []string{"name"},
			},
			{
				Name:       CollectionUserProfiles,
				PrimaryKey: "userId",
			},
		},
	}
}
