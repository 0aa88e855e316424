package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kartikbazzad/bunbase/bunlog/logquery"
	"github.com/kartikbazzad/bunbase/bunlog/query"
	"github.com/kartikbazzad/bunbase/bunlog/transport"
)

const maxBodyBytes = 8 << 20

// IDKey is the meta key ingested entries are stamped with.
const IDKey = "id"

type ingestResponse struct {
	Accepted int      `json:"accepted"`
	IDs      []string `json:"ids"`
}

type queryResponse struct {
	Count   int           `json:"count"`
	Records []query.Value `json:"records"`
}

func (s *Server) readBody(c *gin.Context) ([]byte, *AppError) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &AppError{Code: http.StatusRequestEntityTooLarge, Message: "request body too large"}
		}
		return nil, badRequest("failed to read request body", err.Error())
	}
	return body, nil
}

// handleIngest accepts one entry or an array of entries. Entries without
// a level are "info", entries without a timestamp get the receive time,
// and every entry gets an id unless it carries one.
func (s *Server) handleIngest(c *gin.Context) {
	body, appErr := s.readBody(c)
	if appErr != nil {
		s.fail(c, appErr)
		return
	}
	if appErr := validate(s.schemas.ingest, body); appErr != nil {
		s.fail(c, appErr)
		return
	}

	doc, err := query.ParseJSON(body)
	if err != nil {
		s.fail(c, badRequest("request body is not valid JSON", err.Error()))
		return
	}
	items := []query.Value{doc}
	if doc.Kind() == query.KindArray {
		items = doc.Elements()
	}

	now := time.Now()
	entries := make([]transport.Entry, 0, len(items))
	ids := make([]string, 0, len(items))
	for i, item := range items {
		e, err := transport.EntryFromValue(item)
		if err != nil {
			s.fail(c, badRequest("invalid entry at index "+strconv.Itoa(i), err.Error()))
			return
		}
		if e.Level == "" {
			e.Level = transport.DefaultWriterLevel
		}
		if e.Time.IsZero() {
			e.Time = now
		}
		var id string
		e.Meta, id = stampID(e.Meta)
		entries = append(entries, e)
		ids = append(ids, id)
	}

	if s.limiter != nil && !s.limiter.allow(c.ClientIP(), len(entries), now) {
		s.fail(c, &AppError{Code: http.StatusTooManyRequests, Message: "rate limit exceeded"})
		return
	}

	transport.LogBatch(s.ingest, entries)
	c.JSON(http.StatusAccepted, ingestResponse{Accepted: len(entries), IDs: ids})
}

// stampID returns meta with an id member, keeping an existing string id.
func stampID(meta query.Value) (query.Value, string) {
	if v, ok := meta.Get(IDKey); ok {
		if id, ok := v.AsString(); ok && id != "" {
			return meta, id
		}
	}
	id := uuid.NewString()
	members := []query.Member{{Key: IDKey, Value: query.String(id)}}
	for _, m := range meta.Members() {
		if m.Key != IDKey {
			members = append(members, m)
		}
	}
	return query.Object(members...), id
}

func (s *Server) handleQuery(c *gin.Context) {
	body, appErr := s.readBody(c)
	if appErr != nil {
		s.fail(c, appErr)
		return
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}
	if appErr := validate(s.schemas.query, body); appErr != nil {
		s.fail(c, appErr)
		return
	}

	var spec logquery.Spec
	if err := json.Unmarshal(body, &spec); err != nil {
		s.fail(c, badRequest("invalid query request", err.Error()))
		return
	}
	s.runQuery(c, spec)
}

// handleSearch reads a Spec from URL parameters. "filter" holds a JSON
// query document; "levels" and "fields" are comma separated.
func (s *Server) handleSearch(c *gin.Context) {
	spec := logquery.Spec{
		Order:   c.Query("order"),
		OrderBy: c.Query("order_by"),
		From:    c.Query("from"),
		Until:   c.Query("until"),
		Search:  c.Query("search"),
		Levels:  splitList(c.Query("levels")),
		Fields:  splitList(c.Query("fields")),
	}
	for name, dst := range map[string]*int{"limit": &spec.Limit, "start": &spec.Start} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.fail(c, badRequest(name+" must be a non-negative integer"))
			return
		}
		*dst = n
	}
	if raw := c.Query("filter"); raw != "" {
		doc, err := query.ParseJSON([]byte(raw))
		if err != nil {
			s.fail(c, badRequest("filter is not valid JSON", err.Error()))
			return
		}
		spec.Filter = doc
	}
	s.runQuery(c, spec)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (s *Server) runQuery(c *gin.Context, spec logquery.Spec) {
	q, err := spec.BuildWith(time.Now(), s.cache.Decode)
	if err != nil {
		var de *query.DecodeError
		if errors.As(err, &de) {
			s.fail(c, badRequest("invalid filter", de.Error()))
			return
		}
		s.fail(c, badRequest("invalid query", err.Error()))
		return
	}

	records, err := s.ingest.Query(c.Request.Context(), q)
	if err != nil {
		s.fail(c, internal(err))
		return
	}
	if records == nil {
		records = []query.Value{}
	}
	c.JSON(http.StatusOK, queryResponse{Count: len(records), Records: records})
}
