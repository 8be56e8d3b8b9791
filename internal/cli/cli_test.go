package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttrpg-tracker/internal/api"
	authapp "ttrpg-tracker/internal/app/auth"
	charapp "ttrpg-tracker/internal/app/character"
	invapp "ttrpg-tracker/internal/app/inventory"
	"ttrpg-tracker/internal/app/query"
	"ttrpg-tracker/internal/app/realtime"
	"ttrpg-tracker/internal/domain/character"
	"ttrpg-tracker/internal/domain/inventory"
	"ttrpg-tracker/internal/platform/cache"
	"ttrpg-tracker/internal/platform/config"
	"ttrpg-tracker/internal/platform/docstore"
	"ttrpg-tracker/internal/platform/localstore"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zerolog.Nop()
	mem, err := cache.NewMemoryStore(128, nil)
	require.NoError(t, err)
	qc := query.New(mem, time.Minute, logger)
	docs := docstore.NewMemory(nil)
	hub := realtime.NewHub(logger)
	t.Cleanup(hub.Close)
	auth := authapp.NewService(authapp.NewMemoryUsers(), authapp.NewMemoryLimiter(20, time.Minute, nil), "test-secret", time.Hour, zerolog.Nop())
	h := api.NewHandler(logger, auth,
		charapp.NewService(docs, qc, hub, logger),
		invapp.NewService(docs, qc, hub, logger),
		hub, "*", 1<<20)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	app    *App
	in     *strings.Reader
	out    *bytes.Buffer
	errOut *bytes.Buffer
	store  *localstore.Memory
}

func newHarness(t *testing.T, srv *httptest.Server, input string) *harness {
	t.Helper()
	h := &harness{
		in:     strings.NewReader(input),
		out:    &bytes.Buffer{},
		errOut: &bytes.Buffer{},
		store:  localstore.NewMemory(),
	}
	cfg := config.ClientConfig{APIURL: srv.URL, Timeout: 5 * time.Second}
	h.app = NewApp(cfg, h.in, h.out, h.errOut,
		WithStorage(h.store),
		WithHTTPClient(srv.Client()),
		WithExitDelay(0),
	)
	return h
}

func (h *harness) run(args ...string) int {
	h.out.Reset()
	h.errOut.Reset()
	return h.app.Run(context.Background(), args)
}

func TestSignupAndManageCharacters(t *testing.T) {
	srv := newServer(t)
	h := newHarness(t, srv, "")

	require.Equal(t, 0, h.run("signup", "gm@example.com", "--password", "hunter22"), h.errOut.String())
	assert.Contains(t, h.out.String(), "Welcome, gm@example.com.")

	require.Equal(t, 0, h.run("characters", "create", "Aragorn", "--image", "https://img.example/a.png"), h.errOut.String())
	require.Equal(t, 0, h.run("characters", "create", "Frodo", "Baggins"), h.errOut.String())

	require.Equal(t, 0, h.run("characters"))
	out := h.out.String()
	assert.Contains(t, out, "Characters (2/9)")
	assert.Contains(t, out, "Aragorn")
	assert.Contains(t, out, "Frodo Baggins")
	assert.Contains(t, out, character.DefaultImageURL)

	require.Equal(t, 0, h.run("characters", "rename", "frodo baggins", "Samwise"), h.errOut.String())
	require.Equal(t, 0, h.run("characters", "list"))
	assert.Contains(t, h.out.String(), "Samwise")
	assert.NotContains(t, h.out.String(), "Frodo")

	require.Equal(t, 0, h.run("characters", "delete", "2", "--yes"), h.errOut.String())
	require.Equal(t, 0, h.run("characters"))
	assert.Contains(t, h.out.String(), "Characters (1/9)")
	assert.NotContains(t, h.out.String(), "Samwise")
}

func TestDeleteAsksForConfirmation(t *testing.T) {
	srv := newServer(t)
	h := newHarness(t, srv, "n\ny\n")
	require.Equal(t, 0, h.run("signup", "gm@example.com", "--password", "hunter22"))
	require.Equal(t, 0, h.run("characters", "create", "Gimli"))

	require.Equal(t, 0, h.run("characters", "delete", "Gimli"))
	assert.Contains(t, h.errOut.String(), "Kept Gimli.")
	_, pending := h.app.chars.DeleteTarget()
	assert.False(t, pending)

	require.Equal(t, 0, h.run("characters", "delete", "Gimli"))
	assert.Contains(t, h.out.String(), "Deleted Gimli.")
	assert.Empty(t, h.app.chars.Characters())
}

func TestCharacterLimit(t *testing.T) {
	srv := newServer(t)
	h := newHarness(t, srv, "")
	require.Equal(t, 0, h.run("signup", "gm@example.com", "--password", "hunter22"))
	for i := 0; i < character.MaxPerUser; i++ {
		require.Equal(t, 0, h.run("characters", "create", "Hero", string(rune('A'+i))), h.errOut.String())
	}
	assert.Equal(t, 1, h.run("characters", "create", "One", "Too", "Many"))
	assert.Contains(t, h.errOut.String(), "You can only have a maximum of 9 characters.")
}

func TestProtectedCommandsNeedLogin(t *testing.T) {
	srv := newServer(t)
	h := newHarness(t, srv, "")

	for _, args := range [][]string{{"characters"}, {"items", "1"}, {"whoami"}, {"purse", "1"}} {
		assert.Equal(t, 1, h.run(args...), args)
		assert.Contains(t, h.errOut.String(), "Please log in to access this page.", args)
	}
}

func TestLoginFailuresAndLockout(t *testing.T) {
	srv := newServer(t)
	h := newHarness(t, srv, "")
	require.Equal(t, 0, h.run("signup", "gm@example.com", "--password", "hunter22"))
	require.Equal(t, 0, h.run("logout"))
	assert.Contains(t, h.out.String(), "Signed out.")

	assert.Equal(t, 1, h.run("login", "nobody@example.com", "--password", "hunter22"))
	assert.Contains(t, h.errOut.String(), "No user found with this email.")

	for i := 0; i < 4; i++ {
		assert.Equal(t, 1, h.run("login", "gm@example.com", "--password", "wrong-one"))
		assert.Contains(t, h.errOut.String(), "Invalid email or password.")
	}

	assert.Equal(t, 1, h.run("login", "gm@example.com", "--password", "hunter22"))
	assert.Contains(t, h.errOut.String(), "Too many failed attempts.")
	assert.Equal(t, 1, h.run("whoami"))
}

func TestLoginRemembersEmail(t *testing.T) {
	srv := newServer(t)
	h := newHarness(t, srv, "hunter22\n")
	require.Equal(t, 0, h.run("signup", "gm@example.com", "--password", "hunter22"))
	require.Equal(t, 0, h.run("logout"))

	require.Equal(t, 0, h.run("login", "gm@example.com", "--password", "hunter22", "--remember"))
	require.Equal(t, 0, h.run("logout"))

	// the password comes from stdin, the email from the state file
	require.Equal(t, 0, h.run("login"), h.errOut.String())
	assert.Contains(t, h.out.String(), "Signed in as gm@example.com.")
	assert.Contains(t, h.errOut.String(), "Password for gm@example.com:")
}

func TestSessionSurvivesNewProcess(t *testing.T) {
	srv := newServer(t)
	h := newHarness(t, srv, "")
	require.Equal(t, 0, h.run("signup", "gm@example.com", "--password", "hunter22"))

	next := NewApp(config.ClientConfig{APIURL: srv.URL}, strings.NewReader(""), h.out, h.errOut,
		WithStorage(h.store), WithHTTPClient(srv.Client()))
	h.out.Reset()
	require.Equal(t, 0, next.Run(context.Background(), []string{"whoami"}), h.errOut.String())
	assert.Contains(t, h.out.String(), "gm@example.com")
}

func TestItemsAndPurse(t *testing.T) {
	srv := newServer(t)
	h := newHarness(t, srv, "")
	require.Equal(t, 0, h.run("signup", "gm@example.com", "--password", "hunter22"))
	require.Equal(t, 0, h.run("characters", "create", "Legolas"))

	require.Equal(t, 0, h.run("items", "add", "1", "Elven", "Bow", "--category", "weapons"), h.errOut.String())
	assert.Contains(t, h.out.String(), "Added 1 × Elven Bow to Legolas.")
	require.Equal(t, 0, h.run("items", "add", "Legolas", "Lembas", "-q", "3", "-c", "consumables"), h.errOut.String())
	require.Equal(t, 0, h.run("items", "add", "1", "Cloak", "-c", "clothes"))

	require.Equal(t, 0, h.run("items", "1"))
	out := h.out.String()
	assert.Contains(t, out, "Legolas's inventory")
	assert.Contains(t, out, "Elven Bow")
	assert.Contains(t, out, "Lembas")

	require.Equal(t, 0, h.run("items", "list", "1", "--category", "Consumables"))
	assert.Contains(t, h.out.String(), "Lembas")
	assert.NotContains(t, h.out.String(), "Elven Bow")

	// positions follow the filtered listing
	require.Equal(t, 0, h.run("items", "edit", "1", "1", "--qty", "5"), h.errOut.String())
	assert.Contains(t, h.out.String(), "Saved Lembas (5, Consumables).")

	assert.Equal(t, 1, h.run("items", "edit", "1", "1", "--qty", "0"))
	assert.Contains(t, h.errOut.String(), "Quantity must be greater than 0")

	require.Equal(t, 0, h.run("items", "1", "--category", "all"))
	require.Equal(t, 0, h.run("items", "delete", "1", "cloak", "-y"), h.errOut.String())
	require.Equal(t, 0, h.run("items", "1"))
	assert.NotContains(t, h.out.String(), "Cloak")

	assert.Equal(t, 1, h.run("items", "add", "1", "Rock", "-c", "pebbles"))
	assert.Contains(t, h.errOut.String(), `unknown category "pebbles"`)

	require.Equal(t, 0, h.run("purse", "1", "gold", "5"), h.errOut.String())
	require.Equal(t, 0, h.run("purse", "1", "Gold", "-2"))
	assert.Equal(t, 3, h.app.items[h.app.chars.Characters()[0].ID].Purse().Balance("Gold"))

	assert.Equal(t, 1, h.run("purse", "1", "gold", "-10"))
	assert.Contains(t, h.errOut.String(), "not enough Gold")
	assert.Equal(t, 1, h.run("purse", "1", "gold"))
	assert.Contains(t, h.errOut.String(), "accepts 1 or 3 arg(s)")
}

func TestUsageErrorsPrintAsIs(t *testing.T) {
	srv := newServer(t)
	h := newHarness(t, srv, "")
	assert.Equal(t, 1, h.run("items"))
	assert.Contains(t, h.errOut.String(), "accepts 1 arg(s), received 0")
	assert.Equal(t, 1, h.run("dance"))
	assert.Contains(t, h.errOut.String(), `unknown command "dance"`)
}

func TestShellKeepsStateBetweenLines(t *testing.T) {
	srv := newServer(t)
	script := strings.Join([]string{
		"signup gm@example.com --password hunter22",
		`characters create "Bilbo Baggins"`,
		"",
		"purse 1 silver 7",
		"characters ls",
		"purse 1",
		"shell",
		`characters create "unterminated`,
		"exit",
		"whoami",
	}, "\n") + "\n"
	h := newHarness(t, srv, script)

	require.Equal(t, 0, h.run("shell"), h.errOut.String())
	out := h.out.String()
	assert.Contains(t, out, "tracker> ")
	assert.Contains(t, out, "gm@example.com> ")
	assert.Contains(t, out, "Bilbo Baggins")
	assert.Contains(t, h.errOut.String(), "Already in the shell.")
	assert.Contains(t, h.errOut.String(), "unterminated quote")

	bilbo := h.app.chars.Characters()[0]
	assert.Equal(t, 7, h.app.items[bilbo.ID].Purse().Balance("Silver"))

	// exit stopped the loop before whoami
	assert.NotContains(t, out, "gm@example.com (")
}

func TestShellStopsAtEOF(t *testing.T) {
	srv := newServer(t)
	h := newHarness(t, srv, "whoami")
	assert.Equal(t, 0, h.run("shell"))
	assert.Contains(t, h.errOut.String(), "Please log in")
}

func TestSplitArgs(t *testing.T) {
	cases := []struct {
		line string
		want []string
	}{
		{"", nil},
		{"  characters   list ", []string{"characters", "list"}},
		{`characters create "Bilbo Baggins"`, []string{"characters", "create", "Bilbo Baggins"}},
		{`items add 1 'Bag of "Holding"'`, []string{"items", "add", "1", `Bag of "Holding"`}},
		{`items add 1 Rope\ 50ft`, []string{"items", "add", "1", "Rope 50ft"}},
		{`x ""`, []string{"x", ""}},
	}
	for _, tc := range cases {
		got, err := splitArgs(tc.line)
		if err != nil {
			t.Fatalf("splitArgs(%q): %v", tc.line, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("splitArgs(%q) = %q, want %q", tc.line, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("splitArgs(%q) = %q, want %q", tc.line, got, tc.want)
			}
		}
	}

	for _, bad := range []string{`"open`, `'open`, `trailing\`} {
		if _, err := splitArgs(bad); err == nil {
			t.Fatalf("splitArgs(%q) should fail", bad)
		}
	}
}

func TestParseCategory(t *testing.T) {
	for in, want := range map[string]inventory.Category{
		"weapons":        inventory.CategoryWeapons,
		"Magic Items":    inventory.CategoryMagicItems,
		"magic-items":    inventory.CategoryMagicItems,
		"MAGIC_ITEMS":    inventory.CategoryMagicItems,
		"misc ellaneous": inventory.CategoryMiscellaneous,
	} {
		got, err := parseCategory(in, false)
		if err != nil || got != want {
			t.Fatalf("parseCategory(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := parseCategory("all", false); err == nil {
		t.Fatalf("All is a filter, not an item category")
	}
	if got, err := parseCategory("", true); err != nil || got != inventory.CategoryAll {
		t.Fatalf("empty filter = %q, %v", got, err)
	}
}

func TestResolveCharacter(t *testing.T) {
	a := character.Character{ID: uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001"), Name: "Aragorn"}
	b := character.Character{ID: uuid.MustParse("aaaabbbb-0000-0000-0000-000000000002"), Name: "Boromir"}
	chars := []character.Character{a, b}

	for ref, want := range map[string]uuid.UUID{
		"1":        a.ID,
		"2":        b.ID,
		"boromir":  b.ID,
		"aaaaaaaa": a.ID,
		"AAAAB":    b.ID,
	} {
		got, err := resolveCharacter(chars, ref)
		if err != nil || got.ID != want {
			t.Fatalf("resolveCharacter(%q) = %v, %v; want %v", ref, got.ID, err, want)
		}
	}
	for _, ref := range []string{"0", "3", "aaaa", "gandalf"} {
		if _, err := resolveCharacter(chars, ref); err == nil {
			t.Fatalf("resolveCharacter(%q) should fail", ref)
		}
	}
}

func TestEventsURL(t *testing.T) {
	got, err := eventsURL("https://tracker.example/", "tok")
	if err != nil || got != "wss://tracker.example/v1/events/ws?token=tok" {
		t.Fatalf("eventsURL = %q, %v", got, err)
	}
	if _, err := eventsURL("ftp://x", "tok"); err == nil {
		t.Fatalf("ftp scheme accepted")
	}
}
