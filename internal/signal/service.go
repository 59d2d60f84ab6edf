package signal

import (
	"crossbot/internal/models"
)

// Service считает последние значения быстрой/медленной средней по свечам
// инструмента. Окно сглаживания равно длине поданного ряда: ряды уже
// обрезаны до fast/slow окон при сборке инструмента.
type Service struct {
	smooth Smoother
}

func NewService(smooth Smoother) *Service {
	if smooth == nil {
		smooth = EMA
	}
	return &Service{smooth: smooth}
}

// Refresh возвращает свежую пару (fast, slow); ok=false, если свечей нет
// и считать не от чего.
func (s *Service) Refresh(inst *models.Instrument) (fast, slow float64, ok bool) {
	if len(inst.FastCloses) == 0 || len(inst.SlowCloses) == 0 {
		return 0, 0, false
	}
	f := s.smooth(inst.FastCloses, len(inst.FastCloses))
	sl := s.smooth(inst.SlowCloses, len(inst.SlowCloses))
	if len(f) == 0 || len(sl) == 0 {
		return 0, 0, false
	}
	return f[len(f)-1], sl[len(sl)-1], true
}
