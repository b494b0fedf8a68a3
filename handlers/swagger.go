package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>docsy-collab Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document describing the invitation surface and the
// websocket entry point.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "docsy-collab", "version": "v0.1.0" },
  "paths": {
    "/api/documents/{id}/invitations": {
      "post": {
        "summary": "Invite an email address to collaborate on a document",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"email":{"type":"string"},"role":{"type":"string","enum":["viewer","editor"]},"notes":{"type":"string"}}}}}},
        "responses": { "201": { "description": "invitation created, invite link returned" }, "409": { "description": "duplicate pending or already a collaborator" }, "429": { "description": "rate limited, retry-after given" } }
      },
      "get": { "summary": "List invitations for a document (owner only)", "responses": { "200": { "description": "invitation list" }, "403": { "description": "not the owner" } } }
    },
    "/api/invitations/token/{token}": {
      "get": { "summary": "Fetch minimal invitation metadata by token", "responses": { "200": { "description": "metadata, possibly with an expiry kind" }, "404": { "description": "unknown token" } } }
    },
    "/api/invitations/token/{token}/validate": {
      "post": { "summary": "Dry-run accept against the authenticated principal", "responses": { "200": { "description": "valid for this principal" }, "403": { "description": "email mismatch" }, "410": { "description": "expired or already used" } } }
    },
    "/api/invitations/token/{token}/accept": {
      "post": { "summary": "Accept an invitation and gain the granted role", "responses": { "200": { "description": "accepted, collaborator grant applied" }, "403": { "description": "email mismatch" }, "410": { "description": "expired or already used" } } }
    },
    "/api/invitations/{id}": {
      "delete": { "summary": "Revoke a pending invitation", "responses": { "200": { "description": "revoked" }, "409": { "description": "already accepted" } } }
    },
    "/api/invitations/{id}/resend": {
      "post": { "summary": "Rotate the token and resend the invitation", "responses": { "200": { "description": "new invitation with fresh link" } } }
    },
    "/api/invitations/sweep": {
      "post": { "summary": "Expire every pending invitation past its deadline", "responses": { "200": { "description": "count of expired invitations" } } }
    },
    "/ws": { "get": { "summary": "Realtime collaboration websocket (token query or Bearer header)", "responses": { "101": { "description": "switching protocols" }, "401": { "description": "bad credential" } } } },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
