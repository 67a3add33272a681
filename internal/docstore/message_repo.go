package docstore

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

// MessageRepository хранит сообщения документами CBOR в Badger.
//
// Ключи:
//
//	msg:{id}                                   документ сообщения
//	room:{room_id}:{created_at_nano:019d}:{id} индекс неудалённых сообщений комнаты
//
// Нулевое дополнение времени даёт лексикографический порядок по created_at,
// id разрешает коллизии в одну наносекунду. При мягком удалении документ
// остаётся, а ключ индекса снимается.
type MessageRepository struct {
	db  *badger.DB
	enc cbor.EncMode
}

func NewMessageRepository(db *badger.DB) (*MessageRepository, error) {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	enc, err := opts.EncMode()
	if err != nil {
		return nil, err
	}
	return &MessageRepository{db: db, enc: enc}, nil
}

func messageKey(id string) []byte {
	return []byte("msg:" + id)
}

func roomPrefix(roomID domain.RoomID) []byte {
	return []byte(fmt.Sprintf("room:%d:", roomID))
}

func indexKey(m *domain.Message) []byte {
	return []byte(fmt.Sprintf("room:%d:%019d:%s", m.RoomID, m.CreatedAt.UnixNano(), m.ID))
}

// Save вставляет новый документ. Изменения существующих идут через Mutate.
func (r *MessageRepository) Save(ctx context.Context, m *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := r.enc.Marshal(m)
	if err != nil {
		return domain.StoreError("docstore.Save", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(m.ID), doc); err != nil {
			return err
		}
		if m.Deleted {
			return txn.Delete(indexKey(m))
		}
		return txn.Set(indexKey(m), nil)
	})
	if err != nil {
		return domain.StoreError("docstore.Save", err)
	}
	return nil
}

// mutateAttempts ограничивает число повторов транзакции при конфликте записи.
const mutateAttempts = 8

// Mutate читает документ, применяет fn и записывает результат в одной
// транзакции. Если между чтением и коммитом документ изменила другая
// транзакция, Badger вернёт ErrConflict и fn повторится на свежей копии.
// fn, вернувший false, оставляет документ нетронутым. Ошибка fn
// возвращается как есть.
func (r *MessageRepository) Mutate(ctx context.Context, id string, fn func(*domain.Message) (bool, error)) (*domain.Message, error) {
	var (
		out *domain.Message
		err error
	)
	for range mutateAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err = r.mutateOnce(id, fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if errors.Is(err, badger.ErrConflict) {
		return nil, domain.StoreError("docstore.Mutate", err)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MessageRepository) mutateOnce(id string, fn func(*domain.Message) (bool, error)) (*domain.Message, error) {
	var (
		m      domain.Message
		fnErr  error
		result *domain.Message
	)
	err := r.db.Update(func(txn *badger.Txn) error {
		m = domain.Message{}
		item, err := txn.Get(messageKey(id))
		if err != nil {
			return err
		}
		if err := item.Value(func(v []byte) error { return cbor.Unmarshal(v, &m) }); err != nil {
			return err
		}

		changed, err := fn(&m)
		if err != nil {
			fnErr = err
			return err
		}
		result = &m
		if !changed {
			return nil
		}

		doc, err := r.enc.Marshal(&m)
		if err != nil {
			return err
		}
		if err := txn.Set(messageKey(m.ID), doc); err != nil {
			return err
		}
		if m.Deleted {
			return txn.Delete(indexKey(&m))
		}
		return txn.Set(indexKey(&m), nil)
	})
	switch {
	case fnErr != nil:
		return nil, fnErr
	case errors.Is(err, badger.ErrConflict):
		return nil, err
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, domain.ErrMessageNotFound
	case err != nil:
		return nil, domain.StoreError("docstore.Mutate", err)
	}
	return result, nil
}

func (r *MessageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var m domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(messageKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return cbor.Unmarshal(v, &m)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, domain.StoreError("docstore.FindByID", err)
	}
	return &m, nil
}

// PageByRoom — страница неудалённых сообщений комнаты, новые первыми.
// page и size уже нормализованы вызывающим. Индекс и документы читаются
// в одной транзакции, поэтому страница согласована с total.
func (r *MessageRepository) PageByRoom(ctx context.Context, roomID domain.RoomID, page, size int) (domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return domain.Page{}, err
	}
	out := domain.Page{Page: page, Size: size, Items: []domain.Message{}}
	offset := math.MaxInt - size
	if size > 0 && page < offset/size {
		offset = page * size
	}

	err := r.db.View(func(txn *badger.Txn) error {
		prefix := roomPrefix(roomID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// самая поздняя позиция префикса, дальше идём назад
		seek := append(append([]byte{}, prefix...), 0xFF)

		var ids []string
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			n := out.TotalElements
			out.TotalElements++
			if n < offset || n >= offset+size {
				continue
			}
			ids = append(ids, idFromIndexKey(it.Item().Key()))
		}

		for _, id := range ids {
			item, err := txn.Get(messageKey(id))
			if err != nil {
				return fmt.Errorf("load %s: %w", id, err)
			}
			var m domain.Message
			if err := item.Value(func(v []byte) error { return cbor.Unmarshal(v, &m) }); err != nil {
				return fmt.Errorf("decode %s: %w", id, err)
			}
			out.Items = append(out.Items, m)
		}
		return nil
	})
	if err != nil {
		return domain.Page{}, domain.StoreError("docstore.PageByRoom", err)
	}

	if size > 0 {
		out.TotalPages = (out.TotalElements + size - 1) / size
	}
	return out, nil
}

func idFromIndexKey(key []byte) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			return string(key[i+1:])
		}
	}
	return string(key)
}
