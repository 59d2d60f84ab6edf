package exchange

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// общее REST/WS-снаряжение адаптеров

type restClient struct {
	http     *http.Client
	wsDialer *websocket.Dialer
}

func newRestClient() restClient {
	return restClient{
		http:     &http.Client{Timeout: 10 * time.Second},
		wsDialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// doJSON выполняет запрос, проверяет 2xx и декодирует тело в out.
func (c *restClient) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if resp.StatusCode/100 != 2 {
		return errors.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

// parseNum — явный парс числовых строк с бирж; обрезание "на глаз"
// недопустимо перед математикой сайзинга и сигналов.
func parseNum(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s %q", name, s)
	}
	return v, nil
}

// normStatus приводит статус ордера к нижнему регистру без подчёркиваний:
// PARTIALLY_FILLED и partiallyFilled схлопываются в одно значение.
func normStatus(raw string) string {
	return strings.ReplaceAll(strings.ToLower(raw), "_", "")
}
