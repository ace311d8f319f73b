package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
)

func TestParseMetadata(t *testing.T) {
	meta, err := parseMetadata([]string{"source=slack", "channel=general"})
	gt.NoError(t, err)
	gt.V(t, meta["source"]).Equal("slack")
	gt.V(t, meta["channel"]).Equal("general")

	_, err = parseMetadata([]string{"no-separator"})
	gt.Error(t, err)

	meta, err = parseMetadata(nil)
	gt.NoError(t, err)
	gt.V(t, len(meta)).Equal(0)
}

func TestLoadConversationsFromArgs(t *testing.T) {
	got, err := loadConversations("", []string{"I", "like", "coffee"})
	gt.NoError(t, err)
	gt.A(t, got).Length(1)
	gt.V(t, got[0].conversation).Equal("I like coffee")
}

func TestLoadConversationsFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.yml")
	content := `conversations:
  - - role: user
      content: I moved to Osaka
    - role: assistant
      content: Noted!
  - - role: user
      content: I started learning piano
`
	gt.NoError(t, os.WriteFile(path, []byte(content), 0600))

	got, err := loadConversations(path, nil)
	gt.NoError(t, err)
	gt.A(t, got).Length(2)
	gt.V(t, got[0].conversation).Equal("user: I moved to Osaka\nassistant: Noted!")
	gt.V(t, got[1].conversation).Equal("user: I started learning piano")
}

func TestLoadConversationsSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.yml")
	content := `sessions:
  - metadata:
      session: s1
    messages:
      - role: user
        content: My cat is named Mochi
  - metadata:
      session: s2
    messages:
      - role: user
        content: I adopted a second cat
`
	gt.NoError(t, os.WriteFile(path, []byte(content), 0600))

	got, err := loadConversations(path, nil)
	gt.NoError(t, err)
	gt.A(t, got).Length(2)
	gt.V(t, got[0].conversation).Equal("user: My cat is named Mochi")
	gt.V(t, got[0].metadata["session"]).Equal("s1")
	gt.V(t, got[1].metadata["session"]).Equal("s2")
}

func TestMergeMetadata(t *testing.T) {
	base := map[string]string{"source": "cli", "env": "dev"}
	overlay := map[string]string{"env": "prod", "session": "s1"}

	merged := mergeMetadata(base, overlay)
	gt.V(t, merged["source"]).Equal("cli")
	gt.V(t, merged["env"]).Equal("prod")
	gt.V(t, merged["session"]).Equal("s1")

	// no overlay returns the base untouched
	gt.V(t, mergeMetadata(base, nil)["env"]).Equal("dev")
}
