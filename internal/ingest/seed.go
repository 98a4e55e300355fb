package ingest

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/confeed/internal/model"
)

// SourceSeed tags tweets imported from a seed file.
const SourceSeed = "seed"

type seedTweet struct {
	ID              string   `yaml:"id"`
	FromUser        string   `yaml:"from_user"`
	FromUserName    string   `yaml:"from_user_name"`
	Text            string   `yaml:"text"`
	CreatedAt       string   `yaml:"created_at"`
	ProfileImageURL string   `yaml:"profile_image_url"`
	Hashtags        []string `yaml:"hashtags"`
}

type seedFile struct {
	Tweets []seedTweet `yaml:"tweets"`
}

// LoadSeedFile reads tweets from a YAML file holding either a list of tweets
// or a mapping with a "tweets" list. Every entry must be valid.
func LoadSeedFile(path string) ([]*model.Tweet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes seed YAML. See LoadSeedFile.
func ParseSeed(data []byte) ([]*model.Tweet, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse seed yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	var entries []seedTweet
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&entries); err != nil {
			return nil, fmt.Errorf("decode seed list: %w", err)
		}
	case yaml.MappingNode:
		var f seedFile
		if err := root.Decode(&f); err != nil {
			return nil, fmt.Errorf("decode seed file: %w", err)
		}
		entries = f.Tweets
	default:
		return nil, fmt.Errorf("parse seed yaml: expected a list or a mapping, got line %d", root.Line)
	}

	now := time.Now()
	tweets := make([]*model.Tweet, 0, len(entries))
	for i, e := range entries {
		t := &model.Tweet{
			ID:              e.ID,
			FromUser:        e.FromUser,
			FromUserName:    e.FromUserName,
			Text:            e.Text,
			ProfileImageURL: e.ProfileImageURL,
			Hashtags:        e.Hashtags,
		}
		if e.CreatedAt != "" {
			created, err := ParseCreatedAt(e.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("seed tweet %d: %w", i, err)
			}
			t.CreatedAt = created
		}
		if err := Normalize(t, SourceSeed, now); err != nil {
			return nil, fmt.Errorf("seed tweet %d: %w", i, err)
		}
		tweets = append(tweets, t)
	}
	return tweets, nil
}
