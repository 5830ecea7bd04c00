package export

// Renderer turns a dataset into a downloadable document.
type Renderer interface {
	Render(data Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

var (
	_ Renderer = (*CSVExporter)(nil)
	_ Renderer = (*PDFExporter)(nil)
)
