package tesco

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// routes emulates Go 1.22's method-qualified ServeMux patterns
// ("GET /path") so the fixtures below also run on older toolchains.
type routes struct {
	mux      *http.ServeMux
	handlers map[string]map[string]http.HandlerFunc // path -> method -> handler
}

func newRoutes() *routes {
	return &routes{mux: http.NewServeMux(), handlers: map[string]map[string]http.HandlerFunc{}}
}

func (rt *routes) HandleFunc(pattern string, handler http.HandlerFunc) {
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		rt.mux.HandleFunc(pattern, handler)
		return
	}
	if rt.handlers[path] == nil {
		rt.handlers[path] = map[string]http.HandlerFunc{}
		rt.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if h, ok := rt.handlers[path][r.Method]; ok {
				h(w, r)
				return
			}
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		})
	}
	rt.handlers[path][method] = handler
}

func (rt *routes) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

const loginPage = `<html><head>
	<meta name="csrf-token" content="test-csrf">
</head><body><form action="/login"></form></body></html>`

const accountPage = `<html><body>
	<nav>My Account | Sign out</nav>
	<div class="clubcard-points">You have 150 points</div>
	<div class="delivery-info">Next delivery 2 Sep 2026, 10:00 - 12:00</div>
</body></html>`

func testClient(t *testing.T, handler http.Handler) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientOptions{
		BaseUrl:    server.URL,
		Email:      "test@example.com",
		Password:   "hunter2",
		ReadDelay:  time.Millisecond,
		WriteDelay: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

// mux with a working login flow, individual tests add the handlers
// they exercise. A nil postLogin gets a handler that always succeeds.
func loginMux(postLogin http.HandlerFunc) *routes {
	mux := newRoutes()
	mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(loginPage))
	})
	if postLogin == nil {
		postLogin = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(accountPage))
		}
	}
	mux.HandleFunc("POST /login", postLogin)
	return mux
}

func TestLoginSuccess(t *testing.T) {
	var postedCSRF string
	mux := loginMux(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		postedCSRF = r.PostFormValue("_csrf")
		require.Equal(t, "test@example.com", r.PostFormValue("username"))
		require.Equal(t, "hunter2", r.PostFormValue("password"))
		w.Write([]byte(accountPage))
	})

	client := testClient(t, mux)
	require.NoError(t, client.Login(context.Background()))
	require.Equal(t, "test-csrf", postedCSRF)
	require.True(t, client.LoggedIn())
	require.True(t, client.HasCSRFToken())
	// credentials never outlive a successful authentication
	require.Empty(t, client.password)
}

func TestLoginFailureCountsAttempts(t *testing.T) {
	mux := loginMux(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<div class="error-message">Incorrect email or password</div>
		</body></html>`))
	})

	client := testClient(t, mux)
	err := client.Login(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Contains(t, authErr.Message, "Incorrect email or password")
	require.False(t, client.LoggedIn())
	require.Equal(t, 1, client.failedLoginAttempts)
}

func TestLoginBackoff(t *testing.T) {
	client := testClient(t, loginMux(nil))

	// window already elapsed, no wait
	client.failedLoginAttempts = 2
	client.lastLoginAttempt = time.Now().Add(-10 * time.Second)
	require.NoError(t, client.loginBackoff(context.Background()))

	// window still open, a cancelled context aborts the wait
	client.lastLoginAttempt = time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, client.loginBackoff(ctx), context.Canceled)

	// many failures cap out instead of overflowing the shift
	client.failedLoginAttempts = 40
	client.lastLoginAttempt = time.Now().Add(-maxLoginBackoff)
	require.NoError(t, client.loginBackoff(context.Background()))
}

func TestSearchProducts(t *testing.T) {
	mux := loginMux(nil)
	mux.HandleFunc("GET /groceries/search", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "milk", r.URL.Query().Get("query"))
		w.Write([]byte(`<html><body>
			<article class="product-tile" data-product-id="42">
				<h3 class="product-title">Whole Milk 2L</h3>
				<span class="price-value">€2.29</span>
			</article>
		</body></html>`))
	})

	client := testClient(t, mux)
	products := client.SearchProducts(context.Background(), "milk")
	require.Equal(t, []Product{{ID: "42", Name: "Whole Milk 2L", Price: "€2.29"}}, products)
}

func TestSearchProductsCachesResults(t *testing.T) {
	hits := 0
	mux := loginMux(nil)
	mux.HandleFunc("GET /groceries/search", func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`<html><body>
			<article class="product-tile">
				<h3 class="product-title">Eggs 12pk</h3>
			</article>
		</body></html>`))
	})

	client := testClient(t, mux)
	first := client.SearchProducts(context.Background(), "eggs")
	second := client.SearchProducts(context.Background(), "eggs")
	require.Equal(t, first, second)
	require.Equal(t, 1, hits)
}

func TestSearchProductsServerErrorYieldsEmpty(t *testing.T) {
	mux := loginMux(nil)
	mux.HandleFunc("GET /groceries/search", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client := testClient(t, mux)
	require.Empty(t, client.SearchProducts(context.Background(), "milk"))
}

func TestAddToBasket(t *testing.T) {
	mux := loginMux(nil)
	mux.HandleFunc("POST /groceries/api/basket/add", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"basketItems": 3}`))
	})

	client := testClient(t, mux)
	result := client.AddToBasket(context.Background(), "42", 2)
	require.True(t, result.Success)
	require.Equal(t, float64(3), result.ResponseData["basketItems"])
}

func TestAddToBasketServerError(t *testing.T) {
	mux := loginMux(nil)
	mux.HandleFunc("POST /groceries/api/basket/add", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})

	client := testClient(t, mux)
	result := client.AddToBasket(context.Background(), "42", 1)
	require.False(t, result.Success)
	require.Contains(t, result.Message, "500")
	require.Equal(t, 500, result.ResponseData["status"])
}

func TestGetData(t *testing.T) {
	mux := loginMux(nil)
	mux.HandleFunc("GET /account", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(accountPage))
	})
	mux.HandleFunc("GET /groceries/basket", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<li class="basket-item">
				<span class="item-name">Bread</span>
				<span class="qty">2</span>
			</li>
		</body></html>`))
	})

	client := testClient(t, mux)
	data, err := client.GetData(context.Background())
	require.NoError(t, err)
	require.Equal(t, 150, data.ClubcardPoints)
	require.Equal(t, "2 Sep 2026", data.DeliveryInfo.NextDelivery)
	require.Equal(t, "10:00 - 12:00", data.DeliveryInfo.DeliverySlot)
	require.Equal(t, []BasketItem{{Name: "Bread", Quantity: 2}}, data.BasketItems)
}

func TestGetDataExpiredSessionSurfacesAuthError(t *testing.T) {
	loginPosts := 0
	mux := loginMux(func(w http.ResponseWriter, r *http.Request) {
		loginPosts++
		w.Write([]byte(accountPage))
	})
	accountHits := 0
	mux.HandleFunc("GET /account", func(w http.ResponseWriter, r *http.Request) {
		accountHits++
		w.WriteHeader(http.StatusUnauthorized)
	})

	client := testClient(t, mux)
	_, err := client.GetData(context.Background())

	// with the password discarded after the first login, the single
	// re-login attempt cannot replay it and comes back as an auth
	// failure without touching the portal again
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, 1, accountHits)
	require.Equal(t, 1, loginPosts)
	require.False(t, client.LoggedIn())
}

func TestCloseIsIdempotent(t *testing.T) {
	client := testClient(t, loginMux(nil))
	require.NoError(t, client.Login(context.Background()))

	client.Close()
	client.Close()
	require.False(t, client.LoggedIn())
	require.False(t, client.HasCSRFToken())
}
