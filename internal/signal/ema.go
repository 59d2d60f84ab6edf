package signal

// Smoother — подключаемая функция сглаживания: по упорядоченному ряду
// закрытий и длине окна возвращает ряд той же длины. Движок потребляет
// только последнее значение за refresh.
type Smoother func(values []float64, window int) []float64

// EMA — экспоненциальное скользящее среднее, k = 2/(n+1), первая точка
// ряда служит затравкой.
func EMA(values []float64, window int) []float64 {
	if len(values) == 0 {
		return nil
	}
	if window <= 1 {
		window = 1
	}
	k := 2.0 / (float64(window) + 1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = k*values[i] + (1-k)*out[i-1]
	}
	return out
}
