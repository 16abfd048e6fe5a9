package invoker

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// operations known to the service, keyed by name
type Catalog struct {
	ops map[string]Operation
}

type catalogFile struct {
	Operations []Operation `yaml:"operations"`
}

var compressQualities = []string{"screen", "ebook", "printer", "prepress"}

var tableFormats = []string{"csv", "xlsx", "json"}

// the operations the service ships with
func DefaultOperations() []Operation {
	return []Operation{
		{
			Name:        "encrypt",
			Description: "Password-protect a PDF with 256-bit AES",
			Feature:     "basic",
			Binary:      "qpdf",
			Args:        []string{"--encrypt", "{param:password}", "{param:password}", "256", "--", "{input}", "{output}"},
			Params:      []Param{{Name: "password", Required: true, MaxLen: 128, Secret: true}},
			Output:      OutputSpec{File: "encrypted.pdf", DownloadName: "encrypted.pdf"},
			Mode:        ModeSync,
			Delivery:    DeliveryDirect,
			Extensions:  []string{".pdf"},
		},
		{
			Name:        "decrypt",
			Description: "Remove the password from a PDF",
			Feature:     "basic",
			Binary:      "qpdf",
			Args:        []string{"--password={param:password}", "--decrypt", "{input}", "{output}"},
			Params:      []Param{{Name: "password", Required: true, MaxLen: 128, Secret: true}},
			Output:      OutputSpec{File: "decrypted.pdf", DownloadName: "decrypted.pdf"},
			Mode:        ModeSync,
			Delivery:    DeliveryDirect,
			Extensions:  []string{".pdf"},
		},
		{
			Name:        "compress",
			Description: "Reduce PDF size with Ghostscript",
			Feature:     "basic",
			Binary:      "gs",
			Args: []string{
				"-sDEVICE=pdfwrite", "-dCompatibilityLevel=1.4", "-dPDFSETTINGS=/{param:quality}",
				"-dNOPAUSE", "-dQUIET", "-dBATCH", "-sOutputFile={output}", "{input}",
			},
			Params:     []Param{{Name: "quality", Default: "ebook", Allowed: compressQualities}},
			Output:     OutputSpec{File: "compressed.pdf", DownloadName: "compressed.pdf"},
			Mode:       ModeSync,
			Delivery:   DeliveryDirect,
			Extensions: []string{".pdf"},
		},
		{
			Name:        "convert-pdf-docx",
			Description: "Convert a PDF into an editable Word document",
			Feature:     "basic",
			Binary:      "python3",
			Args:        []string{"{scripts}/convert_pdf_to_docx.py", "{input}", "{output}"},
			Output:      OutputSpec{File: "converted.docx", DownloadName: "converted.docx"},
			Mode:        ModeSync,
			Delivery:    DeliveryDirect,
			Extensions:  []string{".pdf"},
		},
		{
			Name:        "doc-to-pdf",
			Description: "Convert a Word document to PDF with LibreOffice",
			Feature:     "basic",
			Binary:      "soffice",
			// a private profile lets conversions run side by side
			Args: []string{
				"-env:UserInstallation=file://{outdir}/.profile",
				"--headless", "--convert-to", "pdf", "--outdir", "{outdir}", "{input}",
			},
			// soffice keeps the input's base name
			Output:     OutputSpec{File: "input.pdf", DownloadName: "converted.pdf"},
			Mode:       ModeSync,
			Delivery:   DeliveryDirect,
			Extensions: []string{".doc", ".docx"},
		},
		{
			Name:        "extract-images",
			Description: "Extract embedded images from a PDF as PNG files",
			Feature:     "basic",
			Binary:      "pdfimages",
			Args:        []string{"-png", "{input}", "{outdir}/img"},
			Output:      OutputSpec{Pattern: "*.png", DownloadName: "images.zip"},
			Mode:        ModeStreaming,
			Delivery:    DeliveryStaged,
			Extensions:  []string{".pdf"},
		},
		{
			Name:        "extract-tables",
			Description: "Extract tables from a PDF",
			Feature:     "advanced",
			Binary:      "python3",
			Args:        []string{"{scripts}/extract_tables_from_pdf.py", "{input}", "{outdir}", "{param:format}"},
			Params:      []Param{{Name: "format", Default: "csv", Allowed: tableFormats}},
			Output:      OutputSpec{Pattern: "*.{param:format}", DownloadName: "tables.zip"},
			Mode:        ModeStreaming,
			Delivery:    DeliveryStaged,
			Extensions:  []string{".pdf"},
		},
		{
			Name:        "image-to-table",
			Description: "Recognise tables in an image",
			Feature:     "advanced",
			Binary:      "python3",
			Args:        []string{"{scripts}/from_ai.py", "{input}", "{outdir}", "{param:format}"},
			Params:      []Param{{Name: "format", Default: "csv", Allowed: tableFormats}},
			Output:      OutputSpec{Pattern: "*.{param:format}", DownloadName: "tables.zip"},
			Mode:        ModeStreaming,
			Delivery:    DeliveryStaged,
			Extensions:  []string{".png", ".jpg", ".jpeg"},
		},
		{
			Name:        "image-to-text",
			Description: "Recognise text in an image",
			Feature:     "advanced",
			Binary:      "python3",
			Args:        []string{"{scripts}/from_ai_text_extract.py", "{input}", "{outdir}", "{param:format}"},
			Params:      []Param{{Name: "format", Default: "txt", Allowed: []string{"txt", "docx"}}},
			Output:      OutputSpec{Pattern: "*.{param:format}", DownloadName: "text.zip"},
			Mode:        ModeStreaming,
			Delivery:    DeliveryStaged,
			Extensions:  []string{".png", ".jpg", ".jpeg", ".webp", ".tiff", ".bmp"},
		},
	}
}

// builds a catalog from the given operations after validating each one
func NewCatalog(ops []Operation) (*Catalog, error) {
	c := &Catalog{ops: make(map[string]Operation, len(ops))}

	for _, op := range ops {
		if err := op.validate(); err != nil {
			return nil, err
		}

		c.ops[op.Name] = op
	}

	return c, nil
}

// returns the default catalog, with entries from path added or replaced by name.
// an empty path yields the defaults
func LoadCatalog(path string) (*Catalog, error) {
	ops := DefaultOperations()

	if path == "" {
		return NewCatalog(ops)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read operations file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse operations file: %w", err)
	}

	for _, override := range file.Operations {
		idx := slices.IndexFunc(ops, func(op Operation) bool { return op.Name == override.Name })
		if idx >= 0 {
			ops[idx] = override
		} else {
			ops = append(ops, override)
		}
	}

	return NewCatalog(ops)
}

func (c *Catalog) Get(name string) (Operation, bool) {
	op, ok := c.ops[name]
	return op, ok
}

// all operations sorted by name
func (c *Catalog) List() []Operation {
	ops := make([]Operation, 0, len(c.ops))
	for _, op := range c.ops {
		ops = append(ops, op)
	}

	slices.SortFunc(ops, func(a, b Operation) int { return strings.Compare(a.Name, b.Name) })

	return ops
}

func (op Operation) validate() error {
	if op.Name == "" {
		return fmt.Errorf("operation without name")
	}

	if op.Binary == "" {
		return fmt.Errorf("operation %q: binary is required", op.Name)
	}

	switch op.Mode {
	case ModeSync, ModeStreaming:
	default:
		return fmt.Errorf("operation %q: unknown mode %q", op.Name, op.Mode)
	}

	switch op.Delivery {
	case DeliveryDirect:
		if op.Output.File == "" {
			return fmt.Errorf("operation %q: direct delivery needs output.file", op.Name)
		}
	case DeliveryStaged:
	default:
		return fmt.Errorf("operation %q: unknown delivery %q", op.Name, op.Delivery)
	}

	for _, arg := range op.Args {
		for _, name := range paramRefs(arg) {
			if !slices.ContainsFunc(op.Params, func(p Param) bool { return p.Name == name }) {
				return fmt.Errorf("operation %q: argument references undeclared param %q", op.Name, name)
			}
		}
	}

	return nil
}

// checks caller params against the operation's declarations and fills defaults.
// unknown params are ignored
func (op Operation) ResolveParams(given map[string]string) (map[string]string, error) {
	resolved := make(map[string]string, len(op.Params))

	for _, p := range op.Params {
		val, ok := given[p.Name]
		val = strings.TrimSpace(val)

		if !ok || val == "" {
			if p.Required {
				return nil, &InputError{Field: p.Name, Message: "is required"}
			}

			val = p.Default
		}

		if len(p.Allowed) > 0 && !slices.Contains(p.Allowed, val) {
			return nil, &InputError{Field: p.Name, Message: "must be one of " + strings.Join(p.Allowed, ", ")}
		}

		if p.MaxLen > 0 && len(val) > p.MaxLen {
			return nil, &InputError{Field: p.Name, Message: fmt.Sprintf("must be at most %d characters", p.MaxLen)}
		}

		resolved[p.Name] = val
	}

	return resolved, nil
}

// reports whether a filename has one of the accepted extensions
func (op Operation) AcceptsFile(filename string) bool {
	if len(op.Extensions) == 0 {
		return true
	}

	ext := strings.ToLower(extension(filename))

	return slices.Contains(op.Extensions, ext)
}

// params whose values may be logged
func (op Operation) LoggableParams(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))

	for _, p := range op.Params {
		if v, ok := values[p.Name]; ok && !p.Secret {
			out[p.Name] = v
		}
	}

	return out
}
