package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var langs = []string{"en", "fr", "de"}

func TestNew_PrefixesLang(t *testing.T) {
	r, err := New("/:controller/:action", nil, nil, langs)
	require.NoError(t, err)

	assert.Equal(t, "/:lang/:controller/:action", r.Template)
	assert.Empty(t, r.Defaults)
	assert.Equal(t, Options{
		Lang:    "en|fr|de",
		Inflect: InflectDasherize,
		Persist: []string{LangParam},
	}, r.Options)
}

func TestNew_Root(t *testing.T) {
	r, err := New("/", nil, nil, langs)
	require.NoError(t, err)
	assert.Equal(t, "/:lang", r.Template)

	params, ok := r.Match("/en")
	require.True(t, ok)
	assert.Equal(t, "en", params["lang"])

	_, ok = r.Match("/en/")
	assert.True(t, ok)
	_, ok = r.Match("/es")
	assert.False(t, ok)
}

func TestNew_LangOptionWins(t *testing.T) {
	r, err := New("/:controller/:action", nil, &Options{Lang: "fr|es"}, langs)
	require.NoError(t, err)
	assert.Equal(t, "fr|es", r.Options.Lang)
	assert.Equal(t, InflectDasherize, r.Options.Inflect)

	_, ok := r.Match("/es/posts/index")
	assert.True(t, ok)
	_, ok = r.Match("/en/posts/index")
	assert.False(t, ok)
}

func TestNew_ExistingLangKept(t *testing.T) {
	r, err := New("/prefix/:lang/:controller", nil, nil, langs)
	require.NoError(t, err)
	assert.Equal(t, "/prefix/:lang/:controller", r.Template)

	params, ok := r.Match("/prefix/fr/blog-posts")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"lang": "fr", "controller": "BlogPosts"}, params)
}

func TestNew_NoLanguages(t *testing.T) {
	_, err := New("/:controller", nil, nil, nil)
	assert.ErrorIs(t, err, ErrNoLanguages)
}

func TestNew_BadPattern(t *testing.T) {
	_, err := New("/:id", nil, &Options{Patterns: map[string]string{"id": "[0-9"}}, langs)
	assert.Error(t, err)
}

func TestMatch(t *testing.T) {
	r, err := New("/:controller/:action", map[string]string{"plugin": "Blog"}, nil, langs)
	require.NoError(t, err)

	params, ok := r.Match("/fr/blog-posts/view-all")
	require.True(t, ok)
	assert.Equal(t, map[string]string{
		"plugin":     "Blog",
		"lang":       "fr",
		"controller": "BlogPosts",
		"action":     "viewAll",
	}, params)

	for _, path := range []string{"/fr", "/fr/posts", "/xx/posts/index", "fr/posts/index", "/fr/posts/index/extra"} {
		_, ok := r.Match(path)
		assert.False(t, ok, path)
	}
}

func TestMatch_Patterns(t *testing.T) {
	r, err := New("/posts/:id", nil, &Options{Patterns: map[string]string{"id": `[0-9]+`}}, langs)
	require.NoError(t, err)

	params, ok := r.Match("/de/posts/42")
	require.True(t, ok)
	assert.Equal(t, "42", params["id"])

	_, ok = r.Match("/de/posts/abc")
	assert.False(t, ok)
}

func TestBuild(t *testing.T) {
	r, err := New("/:controller/:action", map[string]string{"action": "index"}, nil, langs)
	require.NoError(t, err)

	url, err := r.Build(map[string]string{"lang": "de", "controller": "BlogPosts", "action": "viewAll"})
	require.NoError(t, err)
	assert.Equal(t, "/de/blog-posts/view-all", url)

	url, err = r.Build(map[string]string{"lang": "en", "controller": "Posts"})
	require.NoError(t, err)
	assert.Equal(t, "/en/posts/index", url)

	_, err = r.Build(map[string]string{"controller": "Posts"})
	assert.ErrorContains(t, err, "missing lang")

	_, err = r.Build(map[string]string{"lang": "es", "controller": "Posts"})
	assert.ErrorContains(t, err, "does not match")
}

func TestPersist(t *testing.T) {
	r, err := New("/:controller", nil, nil, langs)
	require.NoError(t, err)

	current := map[string]string{"lang": "fr", "controller": "Pages"}
	params := r.Persist(current, map[string]string{"controller": "Posts"})
	assert.Equal(t, map[string]string{"lang": "fr", "controller": "Posts"}, params)

	params = r.Persist(current, map[string]string{"lang": "de", "controller": "Posts"})
	assert.Equal(t, "de", params["lang"])

	url, err := r.Build(r.Persist(current, map[string]string{"controller": "Posts"}))
	require.NoError(t, err)
	assert.Equal(t, "/fr/posts", url)
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"fr-CH, fr;q=0.9, en;q=0.8", "fr"},
		{"de-DE", "de"},
		{"en-US,en;q=0.5", "en"},
		{"ja", "en"},
		{"", "en"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Negotiate(tt.header, langs, "en"), tt.header)
	}
	assert.Equal(t, "xx", Negotiate("fr", nil, "xx"))
}

func TestInflection(t *testing.T) {
	assert.Equal(t, "blog-posts", Dasherize("BlogPosts"))
	assert.Equal(t, "view-all", Dasherize("viewAll"))
	assert.Equal(t, "view-all", Dasherize("view_all"))
	assert.Equal(t, "BlogPosts", Camelize("blog-posts"))
	assert.Equal(t, "BlogPosts", Camelize("blog_posts"))
	assert.Equal(t, "viewAll", lowerFirst("ViewAll"))
	assert.Equal(t, "", lowerFirst(""))
}
