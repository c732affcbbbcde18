package journal

import (
	"github.com/gofiber/fiber/v2"
)

const connectedPage = `<!DOCTYPE html>
<html>
<head><title>Journal connected</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 20vh">
  <h1>Journal connected</h1>
  <p>Check-ins will now be added to your Google Doc. You can close this window.</p>
  <script>setTimeout(function() { window.close(); }, 3000);</script>
</body>
</html>
`

// RegisterRoutes mounts the OAuth flow and status under /journal.
func (j *Journal) RegisterRoutes(api fiber.Router) {
	g := api.Group("/journal")

	g.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(j.GetStatus())
	})

	g.Get("/auth", func(c *fiber.Ctx) error {
		return c.Redirect(j.AuthURL(), fiber.StatusTemporaryRedirect)
	})

	g.Get("/callback", func(c *fiber.Ctx) error {
		if c.Query("state") != oauthState {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid state"})
		}
		code := c.Query("code")
		if code == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing authorization code"})
		}
		if err := j.Exchange(c.UserContext(), code); err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
		}
		c.Type("html")
		return c.SendString(connectedPage)
	})

	g.Post("/disconnect", func(c *fiber.Ctx) error {
		if err := j.Disconnect(); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"success": true})
	})
}
