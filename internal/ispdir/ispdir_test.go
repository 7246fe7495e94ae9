package ispdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDirectory() *Directory {
	d := New(nil)
	d.Add("Chunghwa Telecom", "中華電信")
	d.Add("Far EasTone", "遠傳電信")
	return d
}

func TestNormalizeMappedName(t *testing.T) {
	d := newTestDirectory()

	local, foreign := d.Normalize("Far EasTone", "")
	assert.Equal(t, "遠傳電信", local)
	assert.Equal(t, "Far EasTone", foreign)
}

func TestNormalizeCaseInsensitive(t *testing.T) {
	d := newTestDirectory()

	local, _ := d.Normalize("chunghwa telecom", "")
	assert.Equal(t, "中華電信", local)
}

func TestNormalizeUnmappedPassThrough(t *testing.T) {
	d := newTestDirectory()

	local, foreign := d.Normalize("Totally Unknown ISP", "host.example.net")
	assert.Equal(t, "Totally Unknown ISP", local)
	assert.Equal(t, "Totally Unknown ISP", foreign)
}

func TestNormalizeSubBrandTagging(t *testing.T) {
	d := newTestDirectory()

	t.Run("hinet hostname gets tagged", func(t *testing.T) {
		local, foreign := d.Normalize("Chunghwa Telecom", "168-95-1-1.hinet.net")
		assert.Equal(t, "中華電信(hinet)", local)
		assert.Equal(t, "Chunghwa Telecom", foreign)
	})

	t.Run("emome hostname gets tagged", func(t *testing.T) {
		local, _ := d.Normalize("Chunghwa Telecom", "101-137-1-1.emome-ip.hinet.net")
		// hinet appears later in the hostname but emome rules come after
		// hinet in priority order, so hinet wins.
		assert.Equal(t, "中華電信(hinet)", local)
	})

	t.Run("no match leaves name untagged", func(t *testing.T) {
		local, _ := d.Normalize("Chunghwa Telecom", "static.example.org")
		assert.Equal(t, "中華電信", local)
	})

	t.Run("tagging requires a hostname", func(t *testing.T) {
		local, _ := d.Normalize("Chunghwa Telecom", "")
		assert.Equal(t, "中華電信", local)
	})

	t.Run("other carriers are not tagged", func(t *testing.T) {
		local, _ := d.Normalize("Far EasTone", "dynamic.hinet.net")
		assert.Equal(t, "遠傳電信", local)
	})
}

func TestNormalizePriorityOrder(t *testing.T) {
	d := New(nil).WithCarrierRules([]CarrierRule{
		{
			CanonicalLocal: "CarrierX",
			SubBrands: []SubBrandRule{
				{HostSubstring: "alpha", Tag: "alpha"},
				{HostSubstring: "beta", Tag: "beta"},
			},
		},
	})
	d.Add("Carrier X Ltd", "CarrierX")

	local, _ := d.Normalize("Carrier X Ltd", "node.beta.alpha.example")
	assert.Equal(t, "CarrierX(alpha)", local, "first rule in priority order wins")
}

func TestLoadDictionaryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ispdb.tsv")
	content := "Chunghwa Telecom\t中華電信\n" +
		"# comment line\n" +
		"\n" +
		"malformed-no-tab\n" +
		"Taiwan Mobile\t台灣大哥大\n" +
		"\tmissing-raw-name\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	d := New(nil)
	require.NoError(t, d.Load(path))

	assert.Equal(t, 2, d.Len(), "malformed lines are skipped")
	local, _ := d.Normalize("Taiwan Mobile", "")
	assert.Equal(t, "台灣大哥大", local)
}

func TestLoadMissingFileIsNotFatal(t *testing.T) {
	d := New(nil)
	require.NoError(t, d.Load(filepath.Join(t.TempDir(), "nope.tsv")))

	local, foreign := d.Normalize("Some ISP", "")
	assert.Equal(t, "Some ISP", local)
	assert.Equal(t, "Some ISP", foreign)
}
