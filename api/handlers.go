package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rustyeddy/ashare/eventstore"
	"github.com/rustyeddy/ashare/pkg/errs"
	"github.com/rustyeddy/ashare/recommend"
)

func (s *Server) getHealth(c *gin.Context) {
	body := gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
	if s.store != nil {
		body["fts"] = s.store.FTS()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) getProviderHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": s.health(c.Request.Context())})
}

func (s *Server) postRecommend(c *gin.Context) {
	var req recommend.Request
	if err := bind(c, &req); err != nil {
		fail(c, err)
		return
	}
	if !s.running.TryLock() {
		fail(c, errs.Busy("recommend", errors.New("a recommendation is already running")))
		return
	}
	defer s.running.Unlock()

	p, err := s.rec.Run(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p.View(req.Detail))
}

func (s *Server) postEvent(c *gin.Context) {
	var ev eventstore.NewEvent
	if err := bind(c, &ev); err != nil {
		fail(c, err)
		return
	}
	out, err := s.store.Append(c.Request.Context(), ev)
	if err != nil {
		fail(c, err)
		return
	}
	s.hub.Publish(out)
	c.JSON(http.StatusOK, out)
}

func (s *Server) postSync(c *gin.Context) {
	var req eventstore.SyncRequest
	if err := bind(c, &req); err != nil {
		fail(c, err)
		return
	}
	resp, appended, err := s.store.Sync(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	s.hub.Publish(appended...)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getSearch(c *gin.Context) {
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		fail(c, err)
		return
	}
	hits, err := s.store.Search(c.Request.Context(), c.Query("q"), c.Query("conversation_id"), int(limit))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hits": hits})
}

func (s *Server) getConversations(c *gin.Context) {
	convs, err := s.store.ListConversations(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

// getEvents pages with ?after=<seq> or, when around is set, centers the
// page on ?around=<seq>.
func (s *Server) getEvents(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		fail(c, err)
		return
	}
	if _, err := s.store.Meta(ctx, id); err != nil {
		fail(c, err)
		return
	}

	var events []eventstore.Event
	if c.Query("around") != "" {
		center, err := intQuery(c, "around", 1)
		if err != nil {
			fail(c, err)
			return
		}
		events, err = s.store.ListAround(ctx, id, center, int(limit))
		if err != nil {
			fail(c, err)
			return
		}
	} else {
		after, err := intQuery(c, "after", 0)
		if err != nil {
			fail(c, err)
			return
		}
		events, err = s.store.ListAfter(ctx, id, after, int(limit))
		if err != nil {
			fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) getExport(c *gin.Context) {
	x, err := s.store.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, x)
}

func (s *Server) postImport(c *gin.Context) {
	var x eventstore.Export
	if err := bind(c, &x); err != nil {
		fail(c, err)
		return
	}
	if err := s.store.Import(c.Request.Context(), &x); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": x.Conversation.ID, "events": len(x.Events)})
}

func (s *Server) deleteConversation(c *gin.Context) {
	if err := s.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type readRequest struct {
	UserID      string `json:"user_id"`
	LastReadSeq int64  `json:"last_read_seq"`
}

func (s *Server) postRead(c *gin.Context) {
	var req readRequest
	if err := bind(c, &req); err != nil {
		fail(c, err)
		return
	}
	if err := s.store.UpdateRead(c.Request.Context(), c.Param("id"), req.UserID, req.LastReadSeq); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// bind decodes a JSON body. An empty body leaves v at its zero value.
func bind(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return errs.BadData("decode_request", "%v", err)
	}
	return nil
}

func intQuery(c *gin.Context, key string, def int64) (int64, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errs.BadData("query", "%s: %v", key, err)
	}
	return n, nil
}
