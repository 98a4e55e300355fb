package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinytelemetry/confeed/internal/model"
)

var (
	// ErrInvalidTweet marks a tweet missing required fields.
	ErrInvalidTweet = errors.New("ingest: invalid tweet")
	// ErrNotJSON marks a line that is not a JSON object.
	ErrNotJSON = errors.New("ingest: line is not a JSON object")
)

// maxTweetText bounds stored text. Longer text is truncated on a rune boundary.
const maxTweetText = 1000

// Accepted created_at layouts, tried in order. The second and third cover the
// legacy search API ("Thu, 12 Mar 2026 09:30:00 +0000") and v1.1 statuses.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RubyDate,
	time.RFC1123,
	"2006-01-02 15:04:05",
}

// ParseJSONTweet decodes one tweet object. It understands the confeed shape
// and the legacy Twitter search and status shapes.
func ParseJSONTweet(line string) (*model.Tweet, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, ErrNotJSON
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}

	t := &model.Tweet{
		ID:              ExtractStringField(raw, "id_str", "id"),
		FromUser:        ExtractStringField(raw, "from_user", "screen_name", "handle"),
		FromUserName:    ExtractStringField(raw, "from_user_name", "name", "display_name"),
		Text:            ExtractStringField(raw, "text", "full_text"),
		ProfileImageURL: ExtractStringField(raw, "profile_image_url", "profile_image_url_https", "avatar"),
	}
	if user, ok := raw["user"].(map[string]any); ok {
		if t.FromUser == "" {
			t.FromUser = ExtractStringField(user, "screen_name", "handle")
		}
		if t.FromUserName == "" {
			t.FromUserName = ExtractStringField(user, "name")
		}
		if t.ProfileImageURL == "" {
			t.ProfileImageURL = ExtractStringField(user, "profile_image_url_https", "profile_image_url")
		}
	}

	if ts := ExtractStringField(raw, "created_at", "timestamp"); ts != "" {
		created, err := ParseCreatedAt(ts)
		if err != nil {
			return nil, err
		}
		t.CreatedAt = created
	}

	if tags, ok := raw["hashtags"].([]any); ok {
		for _, v := range tags {
			if s, ok := v.(string); ok {
				t.Hashtags = append(t.Hashtags, s)
			}
		}
	}
	return t, nil
}

// ParseCreatedAt parses a tweet timestamp in any accepted layout, or as unix
// seconds.
func ParseCreatedAt(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised created_at %q", ErrInvalidTweet, s)
}

// Normalize validates t and fills derived fields in place: a missing ID gets a
// UUID, a missing CreatedAt gets now, the handle loses its '@', hashtags are
// extracted from the text, and source defaults to source.
func Normalize(t *model.Tweet, source string, now time.Time) error {
	if t == nil {
		return ErrInvalidTweet
	}
	t.FromUser = strings.TrimPrefix(strings.TrimSpace(t.FromUser), "@")
	t.Text = sanitizeText(t.Text)
	if t.FromUser == "" {
		return fmt.Errorf("%w: missing from_user", ErrInvalidTweet)
	}
	if t.Text == "" {
		return fmt.Errorf("%w: missing text", ErrInvalidTweet)
	}

	if t.ID = strings.TrimSpace(t.ID); t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.FromUserName == "" {
		t.FromUserName = t.FromUser
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.CreatedAt = t.CreatedAt.UTC()
	if t.Source == "" {
		t.Source = source
	}

	tags := model.Hashtags(t.Text)
	for _, h := range t.Hashtags {
		tag := strings.TrimPrefix(model.NormalizeHashtag(h), "#")
		if tag != "" && !contains(tags, tag) {
			tags = append(tags, tag)
		}
	}
	t.Hashtags = tags
	return nil
}

func sanitizeText(s string) string {
	s = strings.TrimSpace(strings.ToValidUTF8(s, ""))
	if r := []rune(s); len(r) > maxTweetText {
		s = string(r[:maxTweetText])
	}
	return s
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// ExtractStringField returns the first non-empty string or number among keys.
func ExtractStringField(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}
