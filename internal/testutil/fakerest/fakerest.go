// Package fakerest is an in-memory stand-in for the Supabase HTTP surface
// used in tests: PostgREST tables, Storage uploads and the user-management
// edge functions. It understands only the query dialect the stores emit.
package fakerest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Row is one stored record.
type Row = map[string]any

// Server is the fake backend.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	tables  map[string][]Row
	unique  map[string][]string
	serials map[string]string
	counter map[string]int
	objects map[string][]byte
	calls   map[string]int

	// Now stamps created_at / updated_at.
	Now func() time.Time
	// FailNext, when set, answers the next matching request with the given
	// status and PostgREST error body, then clears itself.
	FailNext *Failure
	// OnPatch runs after a PATCH is applied, under no lock. Tests use it to
	// simulate a concurrent writer.
	OnPatch func(table string, rows []Row)
}

// Failure describes an injected error response.
type Failure struct {
	Method string
	Table  string
	Status int
	Code   string
	Msg    string
}

// New starts a fake server. Close it with Close.
func New() *Server {
	s := &Server{
		tables:  make(map[string][]Row),
		unique:  make(map[string][]string),
		serials: make(map[string]string),
		counter: make(map[string]int),
		objects: make(map[string][]byte),
		calls:   make(map[string]int),
		Now:     time.Now,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Unique declares a unique key used by on_conflict and duplicate checks.
func (s *Server) Unique(table string, cols ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unique[table] = cols
}

// Serial makes col an auto-incrementing integer on insert.
func (s *Server) Serial(table, col string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serials[table] = col
}

// Seed inserts rows as-is, filling id and timestamps when absent.
func (s *Server) Seed(table string, rows ...Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.tables[table] = append(s.tables[table], s.stamp(table, clone(r)))
	}
}

// Rows returns a copy of every row of table.
func (s *Server) Rows(table string) []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		out = append(out, clone(r))
	}
	return out
}

// Update mutates the row with the given id directly.
func (s *Server) Update(table, id string, patch Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.tables[table] {
		if r["id"] == id {
			for k, v := range patch {
				r[k] = v
			}
		}
	}
}

// Calls returns how many requests hit "METHOD table". Storage writes count
// as "POST storage".
func (s *Server) Calls(method, table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+table]
}

// Object returns an uploaded storage object.
func (s *Server) Object(bucket, name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[bucket+"/"+name]
	return b, ok
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("apikey") == "" {
		writeErr(w, http.StatusUnauthorized, "PGRST301", "missing apikey")
		return
	}
	switch {
	case strings.HasPrefix(r.URL.Path, "/rest/v1/"):
		s.serveRest(w, r, strings.TrimPrefix(r.URL.Path, "/rest/v1/"))
	case strings.HasPrefix(r.URL.Path, "/storage/v1/object/"):
		s.serveStorage(w, r, strings.TrimPrefix(r.URL.Path, "/storage/v1/object/"))
	case strings.HasPrefix(r.URL.Path, "/functions/v1/"):
		s.serveFunction(w, r, strings.TrimPrefix(r.URL.Path, "/functions/v1/"))
	default:
		http.NotFound(w, r)
	}
}

// ============================================================
// PostgREST
// ============================================================

type filter struct {
	col, op, val string
}

type restQuery struct {
	filters    []filter
	order      []string
	limit      int
	embeds     []embed
	onConflict []string
}

type embed struct {
	alias, table, fk string
}

func parseQuery(raw string) (restQuery, error) {
	var q restQuery
	values, err := url.ParseQuery(raw)
	if err != nil {
		return q, err
	}
	for key, vs := range values {
		v := vs[0]
		switch key {
		case "select":
			q.embeds = parseEmbeds(v)
		case "order":
			q.order = strings.Split(v, ",")
		case "limit":
			q.limit, _ = strconv.Atoi(v)
		case "on_conflict":
			q.onConflict = strings.Split(v, ",")
		default:
			op, val, ok := strings.Cut(v, ".")
			if !ok {
				return q, fmt.Errorf("bad filter %s=%s", key, v)
			}
			q.filters = append(q.filters, filter{col: key, op: op, val: val})
		}
	}
	return q, nil
}

// parseEmbeds reads "alias:table!fk(cols)" items; the foreign key
// defaults to alias_id.
func parseEmbeds(sel string) []embed {
	var out []embed
	depth, start := 0, 0
	var items []string
	for i, c := range sel {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				items = append(items, sel[start:i])
				start = i + 1
			}
		}
	}
	items = append(items, sel[start:])

	for _, it := range items {
		alias, rest, ok := strings.Cut(it, ":")
		if !ok {
			continue
		}
		target, _, _ := strings.Cut(rest, "(")
		table, fk, hasFK := strings.Cut(target, "!")
		if !hasFK {
			fk = alias + "_id"
		}
		out = append(out, embed{alias: alias, table: table, fk: fk})
	}
	return out
}

func (f filter) match(r Row) bool {
	v, present := r[f.col]
	switch f.op {
	case "eq":
		return present && v != nil && fmt.Sprint(v) == f.val
	case "neq":
		return !present || v == nil || fmt.Sprint(v) != f.val
	case "is":
		return f.val == "null" && (!present || v == nil)
	case "ilike":
		s, ok := v.(string)
		return ok && likeMatch(strings.ToLower(s), strings.ToLower(f.val))
	}
	return false
}

// likeMatch implements LIKE with % wildcards and \-escapes.
func likeMatch(s, pattern string) bool {
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern):
			i++
			cur.WriteByte(pattern[i])
		case c == '%' || c == '*':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	parts = append(parts, cur.String())

	if len(parts) == 1 {
		return s == parts[0]
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for _, p := range parts[1 : len(parts)-1] {
		i := strings.Index(s, p)
		if i < 0 {
			return false
		}
		s = s[i+len(p):]
	}
	return strings.HasSuffix(s, parts[len(parts)-1])
}

func (s *Server) serveRest(w http.ResponseWriter, r *http.Request, table string) {
	q, err := parseQuery(r.URL.RawQuery)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "PGRST100", err.Error())
		return
	}

	s.mu.Lock()
	s.calls[r.Method+" "+table]++
	if f := s.FailNext; f != nil && (f.Method == "" || f.Method == r.Method) && (f.Table == "" || f.Table == table) {
		s.FailNext = nil
		s.mu.Unlock()
		writeErr(w, f.Status, f.Code, f.Msg)
		return
	}
	s.mu.Unlock()

	prefer := r.Header.Get("Prefer")
	minimal := strings.Contains(prefer, "return=minimal")

	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		rows := s.selectRows(table, q)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, rows)

	case http.MethodPost:
		body, err := readRows(r.Body)
		if err != nil {
			writeErr(w, http.StatusBadRequest, "PGRST102", err.Error())
			return
		}
		s.mu.Lock()
		out, code := s.insert(table, body, q.onConflict, prefer)
		var rows []Row
		if code == "" {
			rows = s.project(out, q)
		}
		s.mu.Unlock()
		if code != "" {
			writeErr(w, http.StatusConflict, code, "duplicate key value violates unique constraint")
			return
		}
		if minimal {
			w.WriteHeader(http.StatusCreated)
			return
		}
		writeJSON(w, http.StatusCreated, rows)

	case http.MethodPatch:
		var patch Row
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeErr(w, http.StatusBadRequest, "PGRST102", err.Error())
			return
		}
		s.mu.Lock()
		var touched []Row
		now := s.Now().UTC().Format(time.RFC3339Nano)
		for _, row := range s.tables[table] {
			if !matchesAll(row, q.filters) {
				continue
			}
			for k, v := range patch {
				row[k] = v
			}
			if _, has := row["updated_at"]; has {
				row["updated_at"] = now
			}
			touched = append(touched, row)
		}
		rows := s.project(touched, q)
		hook := s.OnPatch
		s.mu.Unlock()
		if hook != nil {
			hook(table, rows)
		}
		if minimal {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, rows)

	case http.MethodDelete:
		s.mu.Lock()
		kept := s.tables[table][:0]
		for _, row := range s.tables[table] {
			if !matchesAll(row, q.filters) {
				kept = append(kept, row)
			}
		}
		s.tables[table] = kept
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func matchesAll(r Row, filters []filter) bool {
	for _, f := range filters {
		if !f.match(r) {
			return false
		}
	}
	return true
}

func (s *Server) selectRows(table string, q restQuery) []Row {
	var out []Row
	for _, r := range s.tables[table] {
		if matchesAll(r, q.filters) {
			out = append(out, r)
		}
	}
	if len(q.order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.order {
				col, dir, _ := strings.Cut(o, ".")
				c := compare(out[i][col], out[j][col])
				if c == 0 {
					continue
				}
				if strings.HasPrefix(dir, "desc") {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.limit > 0 && len(out) > q.limit {
		out = out[:q.limit]
	}
	return s.project(out, q)
}

// project copies rows and attaches embedded relations.
func (s *Server) project(rows []Row, q restQuery) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		c := clone(r)
		for _, e := range q.embeds {
			c[e.alias] = nil
			fk, _ := r[e.fk].(string)
			for _, target := range s.tables[e.table] {
				if target["id"] == fk && fk != "" {
					c[e.alias] = clone(target)
					break
				}
			}
		}
		out = append(out, c)
	}
	return out
}

func (s *Server) insert(table string, rows []Row, onConflict []string, prefer string) ([]Row, string) {
	keys := onConflict
	if len(keys) == 0 {
		keys = s.unique[table]
	}
	ignore := strings.Contains(prefer, "resolution=ignore-duplicates")
	merge := strings.Contains(prefer, "resolution=merge-duplicates")

	var out []Row
	for _, in := range rows {
		if existing := s.findByKey(table, keys, in); existing != nil {
			switch {
			case merge:
				for k, v := range in {
					existing[k] = v
				}
				if _, has := existing["updated_at"]; has {
					existing["updated_at"] = s.Now().UTC().Format(time.RFC3339Nano)
				}
				out = append(out, existing)
				continue
			case ignore:
				continue
			default:
				return nil, "23505"
			}
		}
		row := s.stamp(table, clone(in))
		s.tables[table] = append(s.tables[table], row)
		out = append(out, row)
	}
	return out, ""
}

func (s *Server) findByKey(table string, keys []string, in Row) Row {
	if len(keys) == 0 {
		return nil
	}
	for _, r := range s.tables[table] {
		same := true
		for _, k := range keys {
			if fmt.Sprint(r[k]) != fmt.Sprint(in[k]) {
				same = false
				break
			}
		}
		if same {
			return r
		}
	}
	return nil
}

func (s *Server) stamp(table string, r Row) Row {
	now := s.Now().UTC().Format(time.RFC3339Nano)
	if id, _ := r["id"].(string); id == "" {
		r["id"] = uuid.NewString()
	}
	if _, ok := r["created_at"]; !ok {
		r["created_at"] = now
	}
	if _, ok := r["updated_at"]; !ok && table != "logs" && table != "role_permissions" {
		r["updated_at"] = now
	}
	if col, ok := s.serials[table]; ok {
		if _, set := r[col]; !set {
			s.counter[table]++
			r[col] = s.counter[table]
		}
	}
	return r
}

// ============================================================
// Storage & edge functions
// ============================================================

func (s *Server) serveStorage(w http.ResponseWriter, r *http.Request, objectPath string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "", err.Error())
		return
	}
	p, _ := url.PathUnescape(objectPath)
	s.mu.Lock()
	s.objects[p] = data
	s.calls["POST storage"]++
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"Key": p})
}

func (s *Server) serveFunction(w http.ResponseWriter, r *http.Request, name string) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing token"})
		return
	}
	var req Row
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["FN "+name]++

	switch name {
	case "list-users":
		writeJSON(w, http.StatusOK, map[string]any{"users": s.tables["profiles"]})
	case "manage-user":
		action, _ := req["action"].(string)
		switch action {
		case "create":
			row := s.stamp("profiles", Row{
				"full_name": req["full_name"],
				"email":     req["email"],
				"role":      req["role"],
				"status":    "ativo",
			})
			s.tables["profiles"] = append(s.tables["profiles"], row)
			writeJSON(w, http.StatusOK, map[string]any{"user": row})
		case "update":
			for _, p := range s.tables["profiles"] {
				if p["id"] == req["user_id"] {
					for _, k := range []string{"full_name", "role", "status", "job_title_id", "origin"} {
						if v, ok := req[k]; ok && v != "" {
							p[k] = v
						}
					}
					writeJSON(w, http.StatusOK, map[string]any{"user": p})
					return
				}
			}
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		case "delete":
			kept := s.tables["profiles"][:0]
			for _, p := range s.tables["profiles"] {
				if p["id"] != req["user_id"] {
					kept = append(kept, p)
				}
			}
			s.tables["profiles"] = kept
			writeJSON(w, http.StatusOK, map[string]any{})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown action"})
		}
	default:
		http.NotFound(w, r)
	}
}

// ============================================================
// Helpers
// ============================================================

func readRows(body io.Reader) ([]Row, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	raw = []byte(strings.TrimSpace(string(raw)))
	if len(raw) > 0 && raw[0] == '[' {
		var rows []Row
		return rows, json.Unmarshal(raw, &rows)
	}
	var row Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	return []Row{row}, nil
}

func compare(a, b any) int {
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case string:
		if y, ok := b.(string); ok {
			tx, errX := time.Parse(time.RFC3339Nano, x)
			ty, errY := time.Parse(time.RFC3339Nano, y)
			if errX == nil && errY == nil {
				return tx.Compare(ty)
			}
			return strings.Compare(x, y)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func clone(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"code": code, "message": msg})
}
