package invoker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	names := []string{}
	for _, op := range c.List() {
		names = append(names, op.Name)
	}

	assert.Equal(t, []string{
		"compress", "convert-pdf-docx", "decrypt", "doc-to-pdf", "encrypt",
		"extract-images", "extract-tables", "image-to-table", "image-to-text",
	}, names)

	encrypt, ok := c.Get("encrypt")
	require.True(t, ok)
	assert.Equal(t, "qpdf", encrypt.Binary)
	assert.Equal(t, DeliveryDirect, encrypt.Delivery)

	images, ok := c.Get("extract-images")
	require.True(t, ok)
	assert.Equal(t, ModeStreaming, images.Mode)
	assert.Equal(t, DeliveryStaged, images.Delivery)

	docx, ok := c.Get("doc-to-pdf")
	require.True(t, ok)
	assert.Equal(t, "soffice", docx.Binary)
	assert.True(t, docx.AcceptsFile("Letter.DOCX"))
	assert.False(t, docx.AcceptsFile("scan.pdf"))

	tables, ok := c.Get("image-to-table")
	require.True(t, ok)
	assert.Equal(t, "advanced", tables.Feature)
	assert.Equal(t, DeliveryStaged, tables.Delivery)

	_, ok = c.Get("merge")
	assert.False(t, ok)
}

func TestDefaultCatalog_DocToPDFArguments(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	op, _ := c.Get("doc-to-pdf")
	ph := placeholders{input: "/w/in/input.docx", outdir: "/w/out"}

	assert.Equal(t, []string{
		"-env:UserInstallation=file:///w/out/.profile",
		"--headless", "--convert-to", "pdf", "--outdir", "/w/out", "/w/in/input.docx",
	}, ph.argv(op.Args))
}

func TestResolveParams(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	compress, _ := c.Get("compress")
	encrypt, _ := c.Get("encrypt")

	t.Run("default applied", func(t *testing.T) {
		params, err := compress.ResolveParams(nil)
		require.NoError(t, err)
		assert.Equal(t, "ebook", params["quality"])
	})

	t.Run("allowlist enforced", func(t *testing.T) {
		_, err := compress.ResolveParams(map[string]string{"quality": "-dSAFER=false"})

		var inputErr *InputError
		require.ErrorAs(t, err, &inputErr)
		assert.Equal(t, "quality", inputErr.Field)
	})

	t.Run("required missing", func(t *testing.T) {
		_, err := encrypt.ResolveParams(map[string]string{"password": "   "})

		var inputErr *InputError
		require.ErrorAs(t, err, &inputErr)
		assert.Equal(t, "password", inputErr.Field)
	})

	t.Run("unknown params ignored", func(t *testing.T) {
		params, err := encrypt.ResolveParams(map[string]string{"password": "pw", "extra": "1"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"password": "pw"}, params)
	})

	t.Run("secret params not loggable", func(t *testing.T) {
		assert.Empty(t, encrypt.LoggableParams(map[string]string{"password": "pw"}))
		assert.Equal(t, map[string]string{"quality": "screen"}, compress.LoggableParams(map[string]string{"quality": "screen"}))
	})
}

func TestAcceptsFile(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	encrypt, _ := c.Get("encrypt")
	ocr, _ := c.Get("image-to-text")

	assert.True(t, encrypt.AcceptsFile("report.PDF"))
	assert.False(t, encrypt.AcceptsFile("report.docx"))
	assert.False(t, encrypt.AcceptsFile("report"))
	assert.True(t, ocr.AcceptsFile("scan.jpeg"))
}

func TestLoadCatalog_YAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operations.yaml")
	yaml := `
operations:
  - name: compress
    feature: advanced
    binary: /usr/local/bin/gs
    args: ["-sOutputFile={output}", "{input}"]
    output:
      file: small.pdf
    mode: sync
    delivery: direct
    timeout: 90s
  - name: rotate
    feature: basic
    binary: qpdf
    args: ["--rotate={param:angle}", "{input}", "{output}"]
    params:
      - name: angle
        default: "+90"
        allowed: ["+90", "-90", "180"]
    output:
      file: rotated.pdf
    mode: sync
    delivery: direct
    extensions: [".pdf"]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)

	compress, ok := c.Get("compress")
	require.True(t, ok)
	assert.Equal(t, "/usr/local/bin/gs", compress.Binary)
	assert.Equal(t, "advanced", compress.Feature)
	assert.Equal(t, 90*time.Second, compress.Timeout)

	rotate, ok := c.Get("rotate")
	require.True(t, ok)
	assert.Equal(t, "+90", rotate.Params[0].Default)

	_, ok = c.Get("encrypt")
	assert.True(t, ok, "defaults not overridden are kept")
}

func TestLoadCatalog_RejectsUndeclaredParam(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operations.yaml")
	yaml := `
operations:
  - name: bad
    binary: qpdf
    args: ["{param:missing}"]
    mode: sync
    delivery: staged
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPlaceholders(t *testing.T) {
	ph := placeholders{
		input:   "/w/in/input.pdf",
		output:  "/w/out/result.pdf",
		outdir:  "/w/out",
		scripts: "/opt/scripts",
		params:  map[string]string{"quality": "ebook", "format": "csv"},
	}

	args := ph.argv([]string{"-dPDFSETTINGS=/{param:quality}", "{outdir}/img", "{scripts}/x.py", "{input}", "*.{param:format}"})

	assert.Equal(t, []string{"-dPDFSETTINGS=/ebook", "/w/out/img", "/opt/scripts/x.py", "/w/in/input.pdf", "*.csv"}, args)
}

func TestPlaceholders_ParamValuesAreNotExpanded(t *testing.T) {
	ph := placeholders{
		input:  "/w/in/input.pdf",
		output: "/w/out/encrypted.pdf",
		outdir: "/w/out",
		params: map[string]string{"password": "{input}", "note": "{param:password}{outdir}"},
	}

	args := ph.argv([]string{"--encrypt", "{param:password}", "{param:note}", "{input}"})

	assert.Equal(t, []string{"--encrypt", "{input}", "{param:password}{outdir}", "/w/in/input.pdf"}, args)
}
