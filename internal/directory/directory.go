// Package directory maps team names to tracker board ids.
//
// The lookup file accepts two line-oriented grammars, mixed freely:
//
//	# Aqua Team        (comment names the next id)
//	350
//	Falcon:492         (name:id on one line)
//
// Anything else is skipped silently.
package directory

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// TeamBoard binds a team name to a numeric board id.
type TeamBoard struct {
	Team    string
	BoardID int
}

// allQueries are team queries that mean "every board".
var allQueries = map[string]bool{
	"all":        true,
	"all teams":  true,
	"everyone":   true,
	"all boards": true,
	"all team":   true,
}

// Directory is an ordered, immutable set of team boards.
type Directory struct {
	boards []TeamBoard
}

// New wraps already-parsed boards.
func New(boards []TeamBoard) *Directory {
	return &Directory{boards: append([]TeamBoard(nil), boards...)}
}

// Load reads and parses a directory file.
func Load(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open board ids file: %w", err)
	}
	defer f.Close()

	boards, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("read board ids file %s: %w", path, err)
	}
	return New(boards), nil
}

// Source yields the current directory. Callers invoke it once per
// resolution so edits to the file take effect without a restart.
type Source func() (*Directory, error)

// FileSource re-reads path on every call.
func FileSource(path string) Source {
	return func() (*Directory, error) { return Load(path) }
}

// Static always yields d.
func Static(d *Directory) Source {
	return func() (*Directory, error) { return d, nil }
}

// ParseString parses directory content held in memory.
func ParseString(s string) []TeamBoard {
	boards, _ := Parse(strings.NewReader(s))
	return boards
}

// Parse reads directory lines from r. Malformed lines are dropped; the only
// error is an I/O failure from r.
func Parse(r io.Reader) ([]TeamBoard, error) {
	var (
		boards  []TeamBoard
		pending string
		hasName bool
	)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "#"):
			pending = normalizeName(line)
			hasName = true

		case isDigits(line):
			id, err := strconv.Atoi(line)
			if err != nil {
				pending, hasName = "", false
				continue
			}
			name := pending
			if !hasName || name == "" {
				name = syntheticName(id)
			}
			boards = append(boards, TeamBoard{Team: name, BoardID: id})
			pending, hasName = "", false

		case strings.Contains(line, ":"):
			name, rawID, _ := strings.Cut(line, ":")
			rawID = strings.TrimSpace(rawID)
			id, err := strconv.Atoi(rawID)
			if !isDigits(rawID) || err != nil {
				pending, hasName = "", false
				continue
			}
			team := normalizeName(name)
			if team == "" {
				team = syntheticName(id)
			}
			boards = append(boards, TeamBoard{Team: team, BoardID: id})
			pending, hasName = "", false

		default:
			pending, hasName = "", false
		}
	}
	if err := sc.Err(); err != nil {
		return boards, err
	}
	return boards, nil
}

// Boards returns a copy of the entries in file order.
func (d *Directory) Boards() []TeamBoard {
	return append([]TeamBoard(nil), d.boards...)
}

// Len reports the number of entries.
func (d *Directory) Len() int { return len(d.boards) }

// IDs returns every board id in file order.
func (d *Directory) IDs() []int {
	ids := make([]int, 0, len(d.boards))
	for _, b := range d.boards {
		ids = append(ids, b.BoardID)
	}
	return ids
}

// Resolve maps a query to board ids by case-insensitive substring match. A
// trailing "team" in the query is ignored when the full query matches
// nothing. An empty query selects everything; a query matching no team name
// but made only of digits is taken as a literal board id. No match yields an
// empty slice.
func (d *Directory) Resolve(query string) []int {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return d.IDs()
	}

	if ids := d.match(q); len(ids) > 0 {
		return ids
	}
	// Names are stored without their "Team" suffix.
	if base, ok := strings.CutSuffix(q, " team"); ok {
		if ids := d.match(strings.TrimSpace(base)); len(ids) > 0 {
			return ids
		}
	}

	if isDigits(q) {
		if id, err := strconv.Atoi(q); err == nil {
			return []int{id}
		}
	}
	return []int{}
}

func (d *Directory) match(q string) []int {
	var ids []int
	for _, b := range d.boards {
		if strings.Contains(strings.ToLower(b.Team), q) {
			ids = append(ids, b.BoardID)
		}
	}
	return ids
}

// NormalizeQuery maps the "all teams" family of queries to the empty query.
func NormalizeQuery(query string) string {
	if allQueries[strings.ToLower(strings.TrimSpace(query))] {
		return ""
	}
	return query
}

// IsAll reports whether query selects every board.
func IsAll(query string) bool {
	return strings.TrimSpace(NormalizeQuery(query)) == ""
}

// normalizeName strips comment markers and a trailing "Team" suffix.
func normalizeName(raw string) string {
	name := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(raw), "#"))
	if len(name) >= 4 && strings.EqualFold(name[len(name)-4:], "team") {
		name = strings.TrimSpace(name[:len(name)-4])
	}
	return name
}

func syntheticName(id int) string {
	return "Board " + strconv.Itoa(id)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
