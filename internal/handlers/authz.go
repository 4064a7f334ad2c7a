package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Role string

const (
	RoleLibrarian Role = "LIBRARIAN"
	RoleVisitor   Role = "VISITOR"
)

// Actor is the request-scoped authorization context. There is no
// process-wide session state; every request carries its own actor.
type Actor struct {
	Role Role
}

const actorKey = "actor"

// Authorization resolves the caller into an Actor from the librarian
// token header. An empty configured token leaves the service in open demo
// mode where every caller is a librarian.
func Authorization(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := Actor{Role: RoleLibrarian}
		if token != "" && c.GetHeader("X-Librarian-Token") != token {
			actor.Role = RoleVisitor
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// requireLibrarian aborts with 401 unless the request's actor is a
// librarian. Returns true when the request may proceed.
func requireLibrarian(c *gin.Context) bool {
	actor, _ := c.MustGet(actorKey).(Actor)
	if actor.Role != RoleLibrarian {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "librarian access required"})
		return false
	}
	return true
}
