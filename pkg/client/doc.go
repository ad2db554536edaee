/*
Package client is a thin HTTP client for the Foreman control API, used by
the foreman CLI.

	c, err := client.NewClient("127.0.0.1:7070")
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.RouteRequest(ctx, &control.RouteRequest{Capability: "web_search"})

Failures reported by the coordinator come back as *types.Error carrying the
original kind, so callers can match them with errors.Is against the
types sentinels.
*/
package client
