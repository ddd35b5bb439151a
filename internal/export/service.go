package export

import "fmt"

// Service renders scoreboard exports.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Export renders the scoreboard in the requested format.
func (s *Service) Export(data ScoreboardData, format Format) (*Result, error) {
	filename := sanitizeFilename(data.ProgramName + "-scoreboard")

	switch format {
	case FormatCSV:
		return exportCSV(data, filename)
	case FormatHTML, FormatPDF:
		html, err := RenderScoreboardHTML(data)
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		if format == FormatHTML {
			return &Result{
				Data:     []byte(html),
				Filename: filename + ".html",
				MimeType: "text/html; charset=utf-8",
			}, nil
		}
		return exportPDF(html, filename)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// sanitizeFilename creates a safe filename stem from a program name.
func sanitizeFilename(name string) string {
	result := ""
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result += string(r)
		case r == ' ':
			result += "-"
		case r == '-', r == '_':
			result += string(r)
		}
	}
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "scoreboard"
	}
	return result
}
