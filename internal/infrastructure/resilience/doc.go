/*
Package resilience provides a circuit breaker for calls to upstream
services such as the GitHub gist API.

	breaker := resilience.New("github", resilience.Settings{
		Threshold: 5,
		Cooldown:  30 * time.Second,
	})

	body, err := resilience.Execute(breaker, func() ([]byte, error) {
		return fetch(ctx)
	})

States:

	Closed --[Threshold failures]-> Open --[Cooldown]-> Half-Open --[trial ok]-> Closed
	                                  ^                     |
	                                  +----[trial failed]---+

While open, calls fail with ErrOpen without reaching the upstream.
*/
package resilience
