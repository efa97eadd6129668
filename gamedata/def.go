package gamedata

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const fetchTimeoutSeconds = 10

// Metadata describes the game-data document a manager was loaded from.
type Metadata struct {
	Set       string `json:"set"`
	Version   string `json:"version"`
	Generated string `json:"generated"`
}

// Augment is one augment record. SearchText is precomputed at load time
// from the lowercase title, description and trait names.
type Augment struct {
	Key         string   `json:"key"`
	Title       string   `json:"title"`
	Tier        string   `json:"tier"`
	Description string   `json:"description"`
	Traits      []string `json:"traits"`

	searchText string
}

// TraitLevel is one activation breakpoint of a trait.
type TraitLevel struct {
	Count       int    `json:"count"`
	Description string `json:"description"`
}

// Trait is one trait record. Levels are kept sorted by ascending count.
type Trait struct {
	Key         string       `json:"key"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Levels      []TraitLevel `json:"levels"`
}

// tierPriority orders augment tiers for search ranking.
var tierPriority = map[string]int{
	"Prismatic": 3,
	"Gold":      2,
	"Silver":    1,
}

// fetchDocument reads a game-data document from an http(s) URL or a local
// file path. Remote fetches go through resty with a hard timeout.
func fetchDocument(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		client := resty.New().SetTimeout(fetchTimeoutSeconds * time.Second)
		resp, err := client.R().
			SetContext(ctx).
			SetHeader("Accept", "application/json").
			Get(source)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", source, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("fetch %s: server returned %s", source, resp.Status())
		}
		return resp.Body(), nil
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	return data, nil
}
