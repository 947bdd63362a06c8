package store

import (
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/leonardcser/wikicache/internal/logger"
)

// Serve accepts connections on l and answers protocol requests against s
// until l is closed. It returns nil once the listener has been closed.
func Serve(l net.Listener, s Store) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Warnf("accept: %v", err)
			continue
		}
		go handleConn(conn, s)
	}
}

func handleConn(conn net.Conn, s Store) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		_ = enc.Encode(handle(s, req))
	}
}

func handle(s Store, req Request) Response {
	switch req.Op {
	case opGet:
		rec, err := s.Get(req.Key)
		if errors.Is(err, ErrNotFound) {
			return Response{Code: codeNotFound}
		}
		if err != nil {
			return errResponse(err)
		}
		return Response{OK: true, Value: rec.Value, CreatedAt: rec.CreatedAt.UnixNano()}
	case opUpsert:
		rec := Record{Key: req.Key, Value: req.Value, CreatedAt: time.Unix(0, req.CreatedAt)}
		if err := s.Upsert(rec); err != nil {
			return errResponse(err)
		}
		return Response{OK: true}
	case opDelete:
		n, err := s.Delete(req.Key)
		if err != nil {
			return errResponse(err)
		}
		return Response{OK: true, Count: n}
	case opDeleteBefore:
		cutoff := time.Unix(0, req.CreatedAt)
		var (
			n   int
			err error
		)
		if req.Key != "" {
			n, err = s.DeleteKeyCreatedBefore(req.Key, cutoff)
		} else {
			n, err = s.DeleteCreatedBefore(cutoff)
		}
		if err != nil {
			return errResponse(err)
		}
		return Response{OK: true, Count: n}
	default:
		return Response{Error: "unknown op " + req.Op}
	}
}

func errResponse(err error) Response {
	logger.Warnf("%v", err)
	var se *StorageError
	if errors.As(err, &se) {
		err = se.Err
	}
	return Response{Error: err.Error()}
}
