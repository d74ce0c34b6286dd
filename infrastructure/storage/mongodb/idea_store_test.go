package mongodb

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/felixgeelhaar/ideaflow/domain/idea"
	"github.com/felixgeelhaar/ideaflow/infrastructure/storage/storetest"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	WithDatabase("ideas_prod")(&cfg)
	WithCollection("backlog")(&cfg)

	if cfg.URI != "mongodb://localhost:27017" {
		t.Errorf("URI = %s", cfg.URI)
	}
	if cfg.Database != "ideas_prod" || cfg.Collection != "backlog" {
		t.Errorf("Database/Collection = %s/%s", cfg.Database, cfg.Collection)
	}
	if cfg.QueryTimeout <= 0 || cfg.ConnectTimeout <= 0 {
		t.Errorf("timeouts not set: %+v", cfg)
	}
}

func TestBuildFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		filter idea.ListFilter
		keys   []string
	}{
		{"empty", idea.ListFilter{}, nil},
		{"status", idea.ListFilter{Status: []idea.Status{idea.StatusDraft}}, []string{"status"}},
		{"status and owner", idea.ListFilter{Status: []idea.Status{idea.StatusDraft}, Owner: "ann"}, []string{"status", "owner"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := buildFilter(tt.filter)
			if len(got) != len(tt.keys) {
				t.Fatalf("buildFilter() = %v, want keys %v", got, tt.keys)
			}
			for _, k := range tt.keys {
				if _, ok := got[k]; !ok {
					t.Errorf("buildFilter() missing %q", k)
				}
			}
		})
	}

	in := buildFilter(idea.ListFilter{Status: []idea.Status{idea.StatusDraft, idea.StatusProposed}})["status"].(bson.M)["$in"].([]string)
	if len(in) != 2 || in[0] != "draft" || in[1] != "proposed" {
		t.Errorf("status $in = %v", in)
	}
}

func TestBuildFindOptions(t *testing.T) {
	t.Parallel()

	opts := buildFindOptions(idea.ListFilter{OrderBy: idea.OrderByTitle, Descending: true, Limit: 5, Offset: 10})

	sort, ok := opts.Sort.(bson.D)
	if !ok || len(sort) != 2 {
		t.Fatalf("Sort = %v", opts.Sort)
	}
	if sort[0].Key != "title" || sort[0].Value != -1 || sort[1].Key != "_id" {
		t.Errorf("Sort = %v", sort)
	}
	if opts.Limit == nil || *opts.Limit != 5 {
		t.Errorf("Limit = %v, want 5", opts.Limit)
	}
	if opts.Skip == nil || *opts.Skip != 10 {
		t.Errorf("Skip = %v, want 10", opts.Skip)
	}

	plain := buildFindOptions(idea.ListFilter{})
	if plain.Limit != nil || plain.Skip != nil {
		t.Errorf("unexpected pagination: limit=%v skip=%v", plain.Limit, plain.Skip)
	}
	if plain.Sort.(bson.D)[0].Key != "created_at" {
		t.Errorf("default sort = %v", plain.Sort)
	}
}

// TestIdeaStore_Contract runs against a live server when
// IDEAFLOW_TEST_MONGODB_URI is set.
func TestIdeaStore_Contract(t *testing.T) {
	uri := os.Getenv("IDEAFLOW_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("IDEAFLOW_TEST_MONGODB_URI not set")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, DefaultConfig(), WithURI(uri), WithDatabase("ideaflow_test"))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	storetest.RunIdeaStore(t, func(t *testing.T) idea.Store {
		collection := client.Collection("ideas_" + uuid.NewString())
		t.Cleanup(func() { _ = collection.Drop(context.Background()) })
		return newIdeaStore(collection, client.config.QueryTimeout)
	})
}
