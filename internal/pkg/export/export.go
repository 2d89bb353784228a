// Package export renders a positioned visualization as a downloadable document.
package export

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"

	"github.com/clabconsole/clabconsole-backend/internal/models"
)

// ErrUnsupportedFormat is returned for an export format this package cannot write.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format is an export encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatSVG     Format = "svg"
	FormatDrawio  Format = "drawio"
	FormatMermaid Format = "mermaid"
	FormatDOT     Format = "dot"
)

// ParseFormat maps a query value to a Format; empty selects JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatSVG, FormatDrawio, FormatMermaid, FormatDOT:
		return f, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnsupportedFormat, s)
}

// ContentType is the HTTP content type of an encoded document.
func (f Format) ContentType() string {
	switch f {
	case FormatSVG:
		return "image/svg+xml"
	case FormatDrawio:
		return "application/xml"
	case FormatMermaid, FormatDOT:
		return "text/plain; charset=utf-8"
	}
	return "application/json"
}

// Extension is the file extension used for downloads.
func (f Format) Extension() string {
	switch f {
	case FormatDrawio:
		return "drawio"
	case FormatMermaid:
		return "mmd"
	case FormatDOT:
		return "gv"
	}
	return string(f)
}

// Encode renders result in format.
func Encode(result *models.VisualizeResult, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return GraphToJSON(result)
	case FormatSVG:
		return GraphToSVG(result)
	case FormatDrawio:
		return GraphToDrawioXML(result)
	case FormatMermaid:
		return []byte(GraphToMermaid(result)), nil
	case FormatDOT:
		return GraphToDOT(result)
	}
	return nil, fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
}

// GraphToJSON returns the visualization as JSON bytes.
func GraphToJSON(result *models.VisualizeResult) ([]byte, error) {
	if result == nil {
		return []byte("null"), nil
	}
	return json.MarshalIndent(result, "", "  ")
}

const margin = 20

var kindStyles = map[models.NodeKind]struct{ fill, stroke string }{
	models.KindTopology:   {"#dbeafe", "#1d4ed8"},
	models.KindDeployment: {"#dcfce7", "#15803d"},
	models.KindService:    {"#fef9c3", "#a16207"},
	models.KindInterface:  {"#f1f5f9", "#475569"},
}

func styleFor(n models.GraphNode) (fill, stroke string) {
	s, ok := kindStyles[n.Kind]
	if !ok {
		return "#e2e8f0", "#64748b"
	}
	return s.fill, s.stroke
}

// bounds returns the extent of all node boxes.
func bounds(nodes []models.GraphNode) (maxX, maxY float64) {
	for _, n := range nodes {
		maxX = math.Max(maxX, n.Position.X+n.Size.Width)
		maxY = math.Max(maxY, n.Position.Y+n.Size.Height)
	}
	return maxX, maxY
}

// GraphToSVG returns an SVG document drawing every node box at its laid out position.
func GraphToSVG(result *models.VisualizeResult) ([]byte, error) {
	if result == nil || len(result.Nodes) == 0 {
		return []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="400" height="100"><text x="20" y="50" font-size="14">No resources</text></svg>`), nil
	}
	maxX, maxY := bounds(result.Nodes)
	width := int(math.Ceil(maxX)) + margin
	height := int(math.Ceil(maxY)) + margin

	byID := make(map[string]models.GraphNode, len(result.Nodes))
	for _, n := range result.Nodes {
		byID[n.ID] = n
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, width, height, width, height)
	buf.WriteString(`<defs><style>.edge { stroke: #94a3b8; stroke-width: 2; fill: none; } .label { font: 12px sans-serif; fill: #334155; } .kind { font: 10px sans-serif; fill: #64748b; }</style></defs>`)
	for _, e := range result.Edges {
		src, ok1 := byID[e.Source]
		dst, ok2 := byID[e.Target]
		if !ok1 || !ok2 {
			continue
		}
		sx, sy := src.Position.X+src.Size.Width/2, src.Position.Y+src.Size.Height/2
		dx, dy := dst.Position.X+dst.Size.Width/2, dst.Position.Y+dst.Size.Height/2
		fmt.Fprintf(&buf, `<path class="edge" d="M %g %g L %g %g"><title>%s</title></path>`, sx, sy, dx, dy, escapeXML(e.ID))
	}
	for _, n := range result.Nodes {
		fill, stroke := styleFor(n)
		x, y := n.Position.X, n.Position.Y
		dash := ""
		if n.External {
			dash = ` stroke-dasharray="4 2"`
		}
		fmt.Fprintf(&buf, `<rect x="%g" y="%g" width="%g" height="%g" rx="6" fill="%s" stroke="%s"%s/>`,
			x, y, n.Size.Width, n.Size.Height, fill, stroke, dash)
		cx, cy := x+n.Size.Width/2, y+n.Size.Height/2
		fmt.Fprintf(&buf, `<text class="kind" x="%g" y="%g" text-anchor="middle">%s</text>`, cx, cy-8, escapeXML(kindLabel(n)))
		fmt.Fprintf(&buf, `<text class="label" x="%g" y="%g" text-anchor="middle">%s</text>`, cx, cy+8, escapeXML(truncate(n.Label, 20)))
	}
	buf.WriteString("</svg>")
	return buf.Bytes(), nil
}

func kindLabel(n models.GraphNode) string {
	if n.SubKind != "" {
		return string(n.Kind) + " (" + string(n.SubKind) + ")"
	}
	return string(n.Kind)
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

func escapeXML(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\"", "&quot;").Replace(s)
}

// draw.io mxfile structure (minimal valid export)
type mxfile struct {
	XMLName xml.Name  `xml:"mxfile"`
	Host    string    `xml:"host,attr"`
	Agent   string    `xml:"agent,attr"`
	Diagram mxDiagram `xml:"diagram"`
}

type mxDiagram struct {
	ID           string       `xml:"id,attr"`
	Name         string       `xml:"name,attr"`
	MxGraphModel mxGraphModel `xml:"mxGraphModel"`
}

type mxGraphModel struct {
	Grid     int    `xml:"grid,attr"`
	GridSize int    `xml:"gridSize,attr"`
	Root     mxRoot `xml:"root"`
}

type mxRoot struct {
	Cells []mxCell `xml:"mxCell"`
}

type mxCell struct {
	ID       string      `xml:"id,attr"`
	Parent   string      `xml:"parent,attr,omitempty"`
	Value    string      `xml:"value,attr,omitempty"`
	Style    string      `xml:"style,attr,omitempty"`
	Vertex   string      `xml:"vertex,attr,omitempty"`
	Edge     string      `xml:"edge,attr,omitempty"`
	Source   string      `xml:"source,attr,omitempty"`
	Target   string      `xml:"target,attr,omitempty"`
	Geometry *mxGeometry `xml:"mxGeometry,omitempty"`
}

type mxGeometry struct {
	X        string `xml:"x,attr,omitempty"`
	Y        string `xml:"y,attr,omitempty"`
	Width    string `xml:"width,attr,omitempty"`
	Height   string `xml:"height,attr,omitempty"`
	Relative string `xml:"relative,attr,omitempty"`
	As       string `xml:"as,attr"`
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// GraphToDrawioXML returns draw.io (diagrams.net) XML bytes.
func GraphToDrawioXML(result *models.VisualizeResult) ([]byte, error) {
	name := "topology"
	if result != nil && result.Meta.Topology != "" {
		name = result.Meta.Topology
	}
	cells := []mxCell{{ID: "0"}, {ID: "1", Parent: "0"}}
	if result != nil {
		nodeToCell := make(map[string]string, len(result.Nodes))
		cellID := 2
		for _, n := range result.Nodes {
			cid := strconv.Itoa(cellID)
			cellID++
			nodeToCell[n.ID] = cid
			fill, stroke := styleFor(n)
			style := "rounded=1;whiteSpace=wrap;html=1;fillColor=" + fill + ";strokeColor=" + stroke + ";"
			if n.External {
				style += "dashed=1;"
			}
			cells = append(cells, mxCell{
				ID:     cid,
				Parent: "1",
				Value:  n.Label,
				Style:  style,
				Vertex: "1",
				Geometry: &mxGeometry{
					X: formatFloat(n.Position.X), Y: formatFloat(n.Position.Y),
					Width: formatFloat(n.Size.Width), Height: formatFloat(n.Size.Height), As: "geometry",
				},
			})
		}
		for _, e := range result.Edges {
			src, ok1 := nodeToCell[e.Source]
			dst, ok2 := nodeToCell[e.Target]
			if !ok1 || !ok2 {
				continue
			}
			cells = append(cells, mxCell{
				ID:       strconv.Itoa(cellID),
				Parent:   "1",
				Edge:     "1",
				Source:   src,
				Target:   dst,
				Style:    "endArrow=classic;html=1;strokeColor=#94a3b8;",
				Geometry: &mxGeometry{Relative: "1", As: "geometry"},
			})
			cellID++
		}
	}
	mx := mxfile{
		Host:  "app.diagrams.net",
		Agent: "clabconsole",
		Diagram: mxDiagram{
			ID:           name,
			Name:         name,
			MxGraphModel: mxGraphModel{Grid: 1, GridSize: 10, Root: mxRoot{Cells: cells}},
		},
	}
	out, err := xml.MarshalIndent(mx, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal drawio document: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

var (
	unsafeIDChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	repeatedUnder = regexp.MustCompile(`_+`)
)

// sanitizeID makes a string safe for Mermaid node IDs.
func sanitizeID(s string) string {
	s = unsafeIDChars.ReplaceAllString(s, "_")
	s = repeatedUnder.ReplaceAllString(s, "_")
	if s == "" {
		s = "node"
	}
	return s
}

// GraphToMermaid converts a visualization to Mermaid flowchart syntax.
func GraphToMermaid(result *models.VisualizeResult) string {
	if result == nil || len(result.Nodes) == 0 {
		return "flowchart LR\n  empty[No resources]"
	}

	dir := "LR"
	if result.Meta.Direction == models.DirectionVertical {
		dir = "TB"
	}
	lines := []string{"flowchart " + dir}

	// distinct node ids can sanitize to the same mermaid id
	mermaidIDs := make(map[string]string, len(result.Nodes))
	used := make(map[string]int, len(result.Nodes))
	for _, n := range result.Nodes {
		id := sanitizeID(n.ID)
		if c := used[id]; c > 0 {
			used[id]++
			id = id + "_" + strconv.Itoa(c)
		} else {
			used[id] = 1
		}
		mermaidIDs[n.ID] = id

		label := strings.ReplaceAll(n.Label, `"`, "'")
		switch n.Kind {
		case models.KindTopology:
			lines = append(lines, `  `+id+`{{"`+label+`"}}`)
		case models.KindService:
			lines = append(lines, `  `+id+`(["`+label+`"])`)
		case models.KindInterface:
			lines = append(lines, `  `+id+`(("`+label+`"))`)
		default:
			lines = append(lines, `  `+id+`["`+label+`"]`)
		}
	}
	for _, e := range result.Edges {
		from, ok1 := mermaidIDs[e.Source]
		to, ok2 := mermaidIDs[e.Target]
		if !ok1 || !ok2 {
			continue
		}
		lines = append(lines, `  `+from+` --> `+to)
	}
	return strings.Join(lines, "\n")
}

// GraphToDOT converts a visualization to a Graphviz digraph. Node positions are pinned
// (pos "x,y!" in points) so neato -n renders the same picture as the console.
func GraphToDOT(result *models.VisualizeResult) ([]byte, error) {
	const graphName = "topology"
	g := gographviz.NewGraph()
	if err := g.SetName(graphName); err != nil {
		return nil, err
	}
	if err := g.SetDir(true); err != nil {
		return nil, err
	}
	rankdir := "LR"
	if result != nil && result.Meta.Direction == models.DirectionVertical {
		rankdir = "TB"
	}
	if err := g.AddAttr(graphName, string(gographviz.RankDir), rankdir); err != nil {
		return nil, err
	}
	if result == nil {
		return []byte(g.String()), nil
	}

	for _, n := range result.Nodes {
		fill, stroke := styleFor(n)
		attrs := map[string]string{
			string(gographviz.Label):     strconv.Quote(n.Label),
			string(gographviz.Shape):     "box",
			string(gographviz.Style):     `"rounded,filled"`,
			string(gographviz.FillColor): strconv.Quote(fill),
			string(gographviz.Color):     strconv.Quote(stroke),
			string(gographviz.Pos):       strconv.Quote(formatFloat(n.Position.X+n.Size.Width/2) + "," + formatFloat(n.Position.Y+n.Size.Height/2) + "!"),
			string(gographviz.Width):     formatFloat(n.Size.Width / 72),
			string(gographviz.Height):    formatFloat(n.Size.Height / 72),
		}
		if n.External {
			attrs[string(gographviz.Style)] = `"rounded,filled,dashed"`
		}
		if err := g.AddNode(graphName, strconv.Quote(n.ID), attrs); err != nil {
			return nil, fmt.Errorf("dot node %s: %w", n.ID, err)
		}
	}
	for _, e := range result.Edges {
		if err := g.AddEdge(strconv.Quote(e.Source), strconv.Quote(e.Target), true, nil); err != nil {
			return nil, fmt.Errorf("dot edge %s: %w", e.ID, err)
		}
	}
	return []byte(g.String()), nil
}
