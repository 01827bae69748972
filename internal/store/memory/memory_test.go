package memory_test

import (
	"testing"

	"github.com/zhouzirui/fin-advisor/backend/internal/store"
	"github.com/zhouzirui/fin-advisor/backend/internal/store/memory"
	"github.com/zhouzirui/fin-advisor/backend/internal/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return memory.New()
	})
}
