package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pevans/collect/pipeline"
)

const progressTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>collect: {{.Token.Stage}}</title>
{{- if .Next}}
<meta http-equiv="refresh" content="{{.Delay}};url={{.Next}}">
{{- end}}
</head>
<body>
<h1>{{.Token.Stage}}</h1>
{{- if .Error}}
<p class="error">{{.Error}}</p>
{{- end}}
<pre>{{.Log}}</pre>
<p>found {{.Token.Totals.Found}}, new {{.Token.Totals.New}}, duplicate {{.Token.Totals.Duplicates}}, malformed {{.Token.Totals.Malformed}}, fetch failures {{.Token.Totals.FetchFailures}}, extracted {{.Token.Totals.Extracted}}, imported {{.Token.Totals.Imported}}, failed {{.Token.Totals.Failed}}, held {{.Token.Totals.Held}}</p>
{{- if .Token.Done}}
<p>Done.</p>
{{- else if .Next}}
<p><a href="{{.Next}}">Continue</a></p>
{{- end}}
</body>
</html>
`

type progressPage struct {
	Token pipeline.Token
	Log   string
	Error string
	Next  string
	Delay int
}

// HandleProgressPage handles GET /collect/{stage}. It runs one step of the
// token in the query string and renders the progress log with a refresh to
// the next token, so a browser drives the run to completion.
func (s *Server) HandleProgressPage(c *gin.Context) {
	q := c.Request.URL.Query()
	q.Set("stage", c.Param("stage"))

	tok, err := pipeline.DecodeToken(q)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}

	var progress strings.Builder
	next, err := s.deps.Controller.Step(c.Request.Context(), tok, &progress)
	if err != nil && !errors.Is(err, pipeline.ErrNodeBusy) {
		s.handleError(c, err)
		return
	}

	page := progressPage{
		Token: next,
		Log:   progress.String(),
		Delay: int(s.opts.RefreshDelay.Seconds()),
	}
	status := http.StatusOK
	if err != nil {
		// Busy: offer the same token again
		page.Error = err.Error()
		status = http.StatusConflict
		if page.Delay < 1 {
			page.Delay = 1
		}
	}
	if !next.Done {
		page.Next = progressURL(next)
	}

	c.HTML(status, "progress", page)
}

func progressURL(tok pipeline.Token) string {
	q := tok.Encode()
	q.Del("stage")
	return fmt.Sprintf("/collect/%s?%s", tok.Stage, q.Encode())
}

// StepResponse represents the response for POST /api/v1/collect/step.
type StepResponse struct {
	Token pipeline.Token `json:"token"`
	Log   []string       `json:"log"`
}

// HandleStep handles POST /api/v1/collect/step. The body is a token; the
// response carries the next one.
func (s *Server) HandleStep(c *gin.Context) {
	var tok pipeline.Token
	if err := c.ShouldBindJSON(&tok); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}
	if !tok.Stage.Valid() {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", fmt.Sprintf("invalid stage %q", tok.Stage)))
		return
	}

	var progress strings.Builder
	next, err := s.deps.Controller.Step(c.Request.Context(), tok, &progress)
	if err != nil {
		s.handleError(c, err)
		return
	}

	resp := StepResponse{Token: next, Log: []string{}}
	for _, line := range strings.Split(progress.String(), "\n") {
		if line != "" {
			resp.Log = append(resp.Log, line)
		}
	}
	c.JSON(http.StatusOK, resp)
}
