package backplane

// DefaultKeyPrefix namespaces all backplane keys and channels.
const DefaultKeyPrefix = "vtt:ws:"

// keyspace builds the Redis key and channel names for one prefix.
type keyspace struct {
	prefix string
}

func newKeyspace(prefix string) keyspace {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return keyspace{prefix: prefix}
}

func (k keyspace) session(clientID string) string {
	return k.prefix + "session:" + clientID
}

func (k keyspace) serverSessions(serverID string) string {
	return k.prefix + "server:" + serverID + ":sessions"
}

func (k keyspace) gameSessions(gameID string) string {
	return k.prefix + "game:" + gameID + ":sessions"
}

func (k keyspace) userSessions(userID string) string {
	return k.prefix + "user:" + userID + ":sessions"
}

func (k keyspace) heartbeat(serverID string) string {
	return k.prefix + "heartbeat:" + serverID
}

func (k keyspace) broadcastChannel() string {
	return k.prefix + "broadcast"
}

func (k keyspace) serverChannel(serverID string) string {
	return k.prefix + "server:" + serverID
}

func (k keyspace) serverSessionsPattern() string {
	return k.prefix + "server:*:sessions"
}

func (k keyspace) gameSessionsPattern() string {
	return k.prefix + "game:*:sessions"
}

func (k keyspace) userSessionsPattern() string {
	return k.prefix + "user:*:sessions"
}

func (k keyspace) heartbeatPattern() string {
	return k.prefix + "heartbeat:*"
}

// serverIDFromSessionsKey extracts the server id from a
// "{prefix}server:{id}:sessions" key, or "" if the key has another shape.
func (k keyspace) serverIDFromSessionsKey(key string) string {
	head := k.prefix + "server:"
	const tail = ":sessions"
	if len(key) <= len(head)+len(tail) {
		return ""
	}
	if key[:len(head)] != head || key[len(key)-len(tail):] != tail {
		return ""
	}
	return key[len(head) : len(key)-len(tail)]
}
