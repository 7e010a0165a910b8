package api

import "context"

const followPageSize = 200

// FollowOptions controls Follow.
type FollowOptions struct {
	// Lines is the number of recent events replayed first. Zero starts after
	// the newest event.
	Lines int
	// Since resumes from a known cursor and overrides Lines.
	Since uint64
	// Follow keeps long-polling for new events.
	Follow bool
	// UntilTerminal stops after a success, error or cancelled event.
	UntilTerminal bool
}

// Follow streams events from the service to onEvent. It returns the last
// terminal event seen (zero Event when none) and returns nil when ctx ends.
func Follow(ctx context.Context, client *Client, opts FollowOptions, onEvent func(Event)) (Event, error) {
	var terminal Event
	query := EventsQuery{Since: opts.Since, Limit: followPageSize}
	if opts.Since == 0 {
		resp, err := client.Events(ctx, EventsQuery{Tail: true, Limit: max(opts.Lines, 1)})
		if err != nil {
			return terminal, quiet(ctx, err)
		}
		if opts.Lines > 0 {
			for _, evt := range resp.Events {
				if onEvent != nil {
					onEvent(evt)
				}
				if evt.Terminal() {
					terminal = evt
				}
			}
			if opts.UntilTerminal && terminal.Type != "" {
				return terminal, nil
			}
		}
		query.Since = resp.Next
	}
	if !opts.Follow {
		if opts.Since == 0 {
			return terminal, nil
		}
		resp, err := client.Events(ctx, query)
		if err != nil {
			return terminal, quiet(ctx, err)
		}
		for _, evt := range resp.Events {
			if onEvent != nil {
				onEvent(evt)
			}
			if evt.Terminal() {
				terminal = evt
			}
		}
		return terminal, nil
	}

	query.Follow = true
	for {
		resp, err := client.Events(ctx, query)
		if err != nil {
			return terminal, quiet(ctx, err)
		}
		for _, evt := range resp.Events {
			if onEvent != nil {
				onEvent(evt)
			}
			if evt.Terminal() {
				terminal = evt
				if opts.UntilTerminal {
					return terminal, nil
				}
			}
		}
		query.Since = resp.Next
	}
}

func quiet(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}
