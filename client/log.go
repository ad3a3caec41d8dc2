package client

import "context"

func hasKey(keyvals []any, target string) bool {
	for i := 0; i+1 < len(keyvals); i += 2 {
		if key, ok := keyvals[i].(string); ok && key == target {
			return true
		}
	}
	return false
}

func (c *Client) enrichKeyvals(ctx context.Context, keyvals []any) []any {
	if ctx == nil {
		return keyvals
	}
	cid := CorrelationIDFromContext(ctx)
	if cid == "" || hasKey(keyvals, "cid") {
		return keyvals
	}
	enriched := append([]any(nil), keyvals...)
	enriched = append(enriched, "cid", cid)
	return enriched
}

func (c *Client) logDebugCtx(ctx context.Context, msg string, keyvals ...any) {
	if c.logger == nil {
		return
	}
	keyvals = c.enrichKeyvals(ctx, keyvals)
	c.logger.Debug(msg, keyvals...)
}

func (c *Client) logInfoCtx(ctx context.Context, msg string, keyvals ...any) {
	if c.logger == nil {
		return
	}
	keyvals = c.enrichKeyvals(ctx, keyvals)
	c.logger.Info(msg, keyvals...)
}

func (c *Client) logWarnCtx(ctx context.Context, msg string, keyvals ...any) {
	if c.logger == nil {
		return
	}
	keyvals = c.enrichKeyvals(ctx, keyvals)
	c.logger.Warn(msg, keyvals...)
}

func (c *Client) logErrorCtx(ctx context.Context, msg string, keyvals ...any) {
	if c.logger == nil {
		return
	}
	keyvals = c.enrichKeyvals(ctx, keyvals)
	c.logger.Error(msg, keyvals...)
}
