package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/roundhouse/internal/cierr"
	"github.com/zulandar/roundhouse/internal/models"
	"github.com/zulandar/roundhouse/internal/registry"
	"github.com/zulandar/roundhouse/internal/scheduler"
	"github.com/zulandar/roundhouse/internal/webhook"
)

// maxBodySize bounds webhook and API request bodies.
const maxBodySize = 1 << 20

// registerRoutes sets up all routes on the gin engine.
func registerRoutes(router *gin.Engine, reg *registry.Registry, sched *scheduler.Scheduler) {
	router.POST("/hook/:owner/:name", handleHook(sched))

	api := router.Group("/api")
	api.GET("/ping", handlePing(sched))

	api.GET("/repos", handleRepoList(reg))
	api.POST("/repos", handleRepoUpsert(reg))
	api.GET("/repos/:owner/:name", handleRepoGet(reg))
	api.DELETE("/repos/:owner/:name", handleRepoDelete(reg))
	api.POST("/repos/:owner/:name/keypair", handleKeypairGenerate(reg))
	api.DELETE("/repos/:owner/:name/keypair", handleKeypairRemove(reg))

	api.GET("/builds", handleBuildList(sched))
	api.GET("/builds/:id", handleBuildGet(sched))
	api.GET("/builds/:id/log", handleBuildLog(sched))
	api.POST("/builds/:id/abort", handleBuildAbort(sched))
}

// repoView is the external shape of a repository. The secret is write-only.
type repoView struct {
	Name         string `json:"name"`
	CloneURL     string `json:"clone_url"`
	RefWhitelist string `json:"ref_whitelist,omitempty"`
	BuildScript  string `json:"build_script,omitempty"`
	PublicKey    string `json:"public_key,omitempty"`
}

func viewOf(r *models.Repository) repoView {
	return repoView{
		Name:         r.Name,
		CloneURL:     r.CloneURL,
		RefWhitelist: r.RefWhitelist,
		BuildScript:  r.BuildScript,
		PublicKey:    r.PublicKey,
	}
}

// handleHook is the webhook entry point. The signature comes from the
// GitHub-style HMAC headers, or for hosts that put a shared secret in the
// payload, from the body's top-level "secret" field.
func handleHook(sched *scheduler.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		repoName := c.Param("owner") + "/" + c.Param("name")

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "rejected", "reason": "unreadable body"})
			return
		}

		signature := c.GetHeader("X-Hub-Signature-256")
		if signature == "" {
			signature = c.GetHeader("X-Hub-Signature")
		}
		if signature == "" {
			signature = bodySecret(body)
		}

		push, err := webhook.ParsePush(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "rejected", "reason": "not a push payload"})
			return
		}

		res := sched.Trigger(repoName, push.Ref, signature, body)
		switch res.Outcome {
		case scheduler.TriggerAccepted:
			c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "build_id": res.BuildID})
		case scheduler.TriggerSkipped:
			c.JSON(http.StatusOK, gin.H{"status": "skipped", "reason": res.Reason})
		default:
			// No auth detail for the sender.
			status := http.StatusForbidden
			if res.Reason == "unknown repository" {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"status": "rejected"})
		}
	}
}

// bodySecret pulls a Gogs-style top-level secret out of the payload.
func bodySecret(body []byte) string {
	var payload struct {
		Secret string `json:"secret"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Secret
}

func handlePing(sched *scheduler.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		url := c.Query("url")
		if url == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "url query parameter is required"})
			return
		}
		err := sched.Ping(c.Request.Context(), url, c.Query("repo"))
		c.JSON(http.StatusOK, gin.H{"accessible": err == nil})
	}
}

func handleRepoList(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		repos, err := reg.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
			return
		}
		views := make([]repoView, 0, len(repos))
		for i := range repos {
			views = append(views, viewOf(&repos[i]))
		}
		c.JSON(http.StatusOK, views)
	}
}

func handleRepoUpsert(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in struct {
			Name         string `json:"name"`
			CloneURL     string `json:"clone_url"`
			Secret       string `json:"secret"`
			RefWhitelist string `json:"ref_whitelist"`
			BuildScript  string `json:"build_script"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}

		repo, err := reg.CreateOrUpdate(registry.Fields{
			Name:         in.Name,
			CloneURL:     in.CloneURL,
			Secret:       in.Secret,
			RefWhitelist: in.RefWhitelist,
			BuildScript:  in.BuildScript,
		})
		if errors.Is(err, cierr.ErrValidation) {
			// Validation detail is safe to surface verbatim.
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
			return
		}
		c.JSON(http.StatusOK, viewOf(repo))
	}
}

func handleRepoGet(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		repo, err := reg.GetByName(c.Param("owner") + "/" + c.Param("name"))
		if errors.Is(err, cierr.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		c.JSON(http.StatusOK, viewOf(repo))
	}
}

func handleRepoDelete(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := reg.Delete(c.Param("owner") + "/" + c.Param("name"))
		if errors.Is(err, cierr.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleKeypairGenerate(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("owner") + "/" + c.Param("name")
		replace := c.Query("replace") == "true"

		publicKey, err := reg.GenerateKeypair(name, replace)
		switch {
		case errors.Is(err, cierr.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
		case errors.Is(err, cierr.ErrExists):
			c.JSON(http.StatusConflict, gin.H{"error": "keypair already exists"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "keypair generation failed"})
		default:
			c.JSON(http.StatusOK, gin.H{"public_key": publicKey})
		}
	}
}

func handleKeypairRemove(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("owner") + "/" + c.Param("name")
		err := reg.RemoveKeypair(name)
		switch {
		case errors.Is(err, cierr.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no keypair to remove"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "keypair removal failed"})
		default:
			c.Status(http.StatusNoContent)
		}
	}
}

func handleBuildList(sched *scheduler.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}
		builds, err := sched.RecentBuilds(c.Query("repo"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
			return
		}
		c.JSON(http.StatusOK, builds)
	}
}

func handleBuildGet(sched *scheduler.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid build id"})
			return
		}
		build, err := sched.GetBuild(uint(id))
		if errors.Is(err, cierr.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "build not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		c.JSON(http.StatusOK, build)
	}
}

func handleBuildAbort(sched *scheduler.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid build id"})
			return
		}
		err = sched.Abort(uint(id))
		if errors.Is(err, cierr.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "build not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "abort failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "aborting", "requested_at": time.Now().UTC().Format(time.RFC3339)})
	}
}
