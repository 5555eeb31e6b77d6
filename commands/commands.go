// Package commands is the command-name -> request-argument builder
// table spec.md §6 treats as an external collaborator ("trivially
// generated"). It builds wire requests via kvpipe.Session, computing
// each routable command's expected keyslot from its key argument and
// pushing the result onto the session's queue.
package commands

import (
	"fmt"

	"github.com/kvpipe/kvpipe"
	"github.com/kvpipe/kvpipe/cluster"
)

// spec names one table entry per command: its wire name and the index,
// within the arguments *after* the command name, holding its key (or
// -1 for commands with no routable key).
type spec struct {
	name        string
	keyArgIndex int
}

var table = map[string]spec{
	"PING":    {"PING", -1},
	"ASKING":  {"ASKING", -1},
	"GET":     {"GET", 0},
	"SET":     {"SET", 0},
	"SETEX":   {"SETEX", 0},
	"DEL":     {"DEL", 0},
	"EXISTS":  {"EXISTS", 0},
	"INCR":    {"INCR", 0},
	"INCRBY":  {"INCRBY", 0},
	"EXPIRE":  {"EXPIRE", 0},
	"PEXPIRE": {"PEXPIRE", 0},
	"TTL":     {"TTL", 0},
	"PTTL":    {"PTTL", 0},
	"DUMP":    {"DUMP", 0},
	"RESTORE": {"RESTORE", 0},
}

func buildArgs(s *kvpipe.Session, name string, rest []any) ([][]byte, error) {
	args := make([][]byte, len(rest)+1)
	args[0] = []byte(name)
	for i, v := range rest {
		b, err := s.CoerceArg(v)
		if err != nil {
			return nil, fmt.Errorf("commands: %s: arg %d: %w", name, i+1, err)
		}
		args[i+1] = b
	}
	return args, nil
}

// Command pushes a request for a named table entry. name must be a key
// in the command table; rest are the arguments following the command
// name itself (the key, if the command has one, is rest[0]).
func Command(s *kvpipe.Session, name string, rest ...any) error {
	sp, ok := table[name]
	if !ok {
		return fmt.Errorf("commands: unknown command %q", name)
	}
	args, err := buildArgs(s, sp.name, rest)
	if err != nil {
		return err
	}
	var slot *int
	if sp.keyArgIndex >= 0 && sp.keyArgIndex+1 < len(args) {
		k := cluster.Keyslot(args[sp.keyArgIndex+1])
		slot = &k
	}
	s.Enqueue(args, slot)
	return nil
}

func Ping(s *kvpipe.Session) error { return Command(s, "PING") }

func Asking(s *kvpipe.Session) error { return Command(s, "ASKING") }

func Get(s *kvpipe.Session, key string) error { return Command(s, "GET", key) }

func Set(s *kvpipe.Session, key string, value any) error { return Command(s, "SET", key, value) }

func SetEx(s *kvpipe.Session, key string, ttlSeconds int64, value any) error {
	return Command(s, "SETEX", key, ttlSeconds, value)
}

func Del(s *kvpipe.Session, keys ...string) error {
	rest := make([]any, len(keys))
	for i, k := range keys {
		rest[i] = k
	}
	return Command(s, "DEL", rest...)
}

func Exists(s *kvpipe.Session, keys ...string) error {
	rest := make([]any, len(keys))
	for i, k := range keys {
		rest[i] = k
	}
	return Command(s, "EXISTS", rest...)
}

func Incr(s *kvpipe.Session, key string) error { return Command(s, "INCR", key) }

func IncrBy(s *kvpipe.Session, key string, delta int64) error {
	return Command(s, "INCRBY", key, delta)
}

func Expire(s *kvpipe.Session, key string, ttlSeconds int64) error {
	return Command(s, "EXPIRE", key, ttlSeconds)
}

func PExpire(s *kvpipe.Session, key string, ttlMillis int64) error {
	return Command(s, "PEXPIRE", key, ttlMillis)
}

func TTL(s *kvpipe.Session, key string) error { return Command(s, "TTL", key) }

func PTTL(s *kvpipe.Session, key string) error { return Command(s, "PTTL", key) }

// Dump pushes a DUMP request with the raw-bulk? option set, since its
// reply is an opaque, serialization-format-specific blob that must
// never be run through text/binary/frozen interpretation.
func Dump(s *kvpipe.Session, key string) error {
	args, err := buildArgs(s, "DUMP", []any{key})
	if err != nil {
		return err
	}
	k := cluster.Keyslot(args[1])
	s.EnqueueRaw(args, &k)
	return nil
}

// Restore pushes a RESTORE request. payload must be kvpipe.RawBytes so
// it is sent on the wire exactly as given, with no marker added.
func Restore(s *kvpipe.Session, key string, ttlMillis int64, payload kvpipe.RawBytes) error {
	return Command(s, "RESTORE", key, ttlMillis, payload)
}

// EvalEnsure pushes an EVAL request whose key arguments start after
// the numkeys argument, which the generic table can't express — Redis's
// EVAL places its keys at a position that depends on numkeys, unlike
// every other command in the table.
func EvalEnsure(s *kvpipe.Session, script string, keys []string, ttlMillis int64) error {
	rest := make([]any, 0, len(keys)+2)
	rest = append(rest, script, int64(len(keys)))
	for _, k := range keys {
		rest = append(rest, k)
	}
	rest = append(rest, ttlMillis)
	args, err := buildArgs(s, "EVAL", rest)
	if err != nil {
		return err
	}
	var slot *int
	if len(keys) > 0 {
		k := cluster.Keyslot([]byte(keys[0]))
		slot = &k
	}
	s.Enqueue(args, slot)
	return nil
}
