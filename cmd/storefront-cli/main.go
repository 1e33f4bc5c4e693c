// Command storefront-cli управляет корзиной на устройстве: в локальном или удалённом
// хранилище в зависимости от входа пользователя и запуск оплаты через storefront-api.
//
//	storefront-cli [flags] signin -user u1 -email u1@example.com
//	storefront-cli [flags] add -id 1 -name Mug -price 29.99
//	storefront-cli [flags] show
//	storefront-cli [flags] checkout
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/repository"
	"github.com/vladislavdragonenkov/storefront/internal/session"
	firestorestore "github.com/vladislavdragonenkov/storefront/internal/storage/firestore"
	"github.com/vladislavdragonenkov/storefront/internal/storage/local"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	remoteNone      = "none"
	remoteFile      = "file"
	remotePostgres  = "postgres"
	remoteFirestore = "firestore"

	// deviceCollection хранит в локальном хранилище identity, под которой выполнен вход.
	deviceCollection = "device"
	deviceIdentityID = "identity"

	commandTimeout = 30 * time.Second
)

var errUsage = errors.New("usage: storefront-cli [flags] signin|signout|add|remove|qty|clear|show|checkout [args]")

type globalOptions struct {
	statePath   string
	remote      string
	remotePath  string
	dsn         string
	project     string
	credentials string
	apiURL      string
	origin      string
	idToken     string
	verbose     bool
}

func parseGlobal(args []string) (globalOptions, []string, error) {
	home, _ := os.UserHomeDir()
	var opts globalOptions

	fs := flag.NewFlagSet("storefront-cli", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.statePath, "state", filepath.Join(home, ".storefront", "device.json"), "device-local store file")
	fs.StringVar(&opts.remote, "remote", remoteFile, "remote backend: none|file|postgres|firestore")
	fs.StringVar(&opts.remotePath, "remote-path", filepath.Join(home, ".storefront", "remote.json"), "remote store file for -remote=file")
	fs.StringVar(&opts.dsn, "dsn", os.Getenv("STOREFRONT_POSTGRES_DSN"), "PostgreSQL DSN for -remote=postgres")
	fs.StringVar(&opts.project, "project", os.Getenv("STOREFRONT_FIRESTORE_PROJECT_ID"), "Firestore project for -remote=firestore")
	fs.StringVar(&opts.credentials, "credentials", os.Getenv("STOREFRONT_FIRESTORE_CREDENTIALS_FILE"), "Firestore credentials file")
	fs.StringVar(&opts.apiURL, "api", "http://localhost:8080", "storefront-api base URL")
	fs.StringVar(&opts.origin, "origin", "http://localhost:3000", "storefront origin for success and cancel URLs")
	fs.StringVar(&opts.idToken, "id-token", os.Getenv("STOREFRONT_ID_TOKEN"), "Firebase ID token sent with checkout")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	if fs.NArg() == 0 {
		return opts, nil, errUsage
	}
	return opts, fs.Args(), nil
}

// device — собранный клиент одного запуска.
type device struct {
	opts       globalOptions
	local      *local.Store
	remote     domain.DocumentStore
	controller *session.Controller
	persister  *cart.Persister
	manager    *cart.Manager
	closeFn    func() error
	logger     *log.Entry
}

func openRemote(ctx context.Context, opts globalOptions) (domain.DocumentStore, func() error, error) {
	switch opts.remote {
	case remoteNone:
		return nil, nil, nil
	case remoteFile:
		store, err := local.Open(opts.remotePath)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case remotePostgres:
		if strings.TrimSpace(opts.dsn) == "" {
			return nil, nil, errors.New("-remote=postgres requires -dsn")
		}
		store, err := postgres.Open(ctx, opts.dsn)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewDocumentStore(store), store.Close, nil
	case remoteFirestore:
		if strings.TrimSpace(opts.project) == "" {
			return nil, nil, errors.New("-remote=firestore requires -project")
		}
		client, err := firestorestore.NewClient(ctx, opts.project, opts.credentials)
		if err != nil {
			return nil, nil, err
		}
		return firestorestore.NewDocumentStore(client), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported remote backend %q", opts.remote)
	}
}

func openDevice(ctx context.Context, opts globalOptions, logger *log.Entry) (*device, error) {
	if dir := filepath.Dir(opts.statePath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	localStore, err := local.Open(opts.statePath)
	if err != nil {
		return nil, err
	}
	remote, closeRemote, err := openRemote(ctx, opts)
	if err != nil {
		return nil, err
	}

	controller := session.NewController(localStore, remote, session.WithLogger(logger.WithField("component", "mode-controller")))
	persister := cart.NewPersister(cart.WithPersisterLogger(logger.WithField("component", "cart-persister")))
	manager := cart.NewManager(controller, persister, cart.WithLogger(logger.WithField("component", "cart-manager")))

	d := &device{
		opts:       opts,
		local:      localStore,
		remote:     remote,
		controller: controller,
		persister:  persister,
		manager:    manager,
		closeFn:    closeRemote,
		logger:     logger,
	}
	return d, nil
}

func (d *device) close() error {
	if d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// savedIdentity читает identity последнего входа; её отсутствие: анонимная сессия.
func (d *device) savedIdentity(ctx context.Context) (domain.Identity, error) {
	doc, err := d.local.Get(ctx, deviceCollection, deviceIdentityID)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return domain.Anonymous(), nil
	}
	if err != nil {
		return domain.Identity{}, err
	}
	str := func(key string) string {
		v, _ := doc[key].(string)
		return v
	}
	return domain.Identity{
		OwnerID:     domain.OwnerID(str("ownerId")),
		Email:       str("email"),
		DisplayName: str("displayName"),
	}, nil
}

func (d *device) saveIdentity(ctx context.Context, identity domain.Identity) error {
	return d.local.Set(ctx, deviceCollection, deviceIdentityID, domain.Document{
		"ownerId":     string(identity.OwnerID),
		"email":       identity.Email,
		"displayName": identity.DisplayName,
	}, domain.SetOptions{})
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, rest, err := parseGlobal(args)
	if err != nil {
		return err
	}

	logger := log.WithField("component", "storefront-cli")
	if opts.verbose {
		logger.Logger.SetLevel(log.DebugLevel)
	}

	d, err := openDevice(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer d.close()

	persistCtx, stopPersister := context.WithCancel(context.Background())
	persisterDone := make(chan struct{})
	go func() {
		defer close(persisterDone)
		d.persister.Run(persistCtx)
	}()
	defer func() {
		stopPersister()
		<-persisterDone
	}()

	identity, err := d.savedIdentity(ctx)
	if err != nil {
		return err
	}
	if _, err := d.manager.Load(ctx, identity); err != nil {
		return err
	}

	if err := d.dispatch(ctx, rest[0], rest[1:], out); err != nil {
		return err
	}
	return d.persister.Flush(ctx)
}

func (d *device) dispatch(ctx context.Context, command string, args []string, out io.Writer) error {
	switch command {
	case "signin":
		return d.signIn(ctx, args, out)
	case "signout":
		return d.signOut(ctx, out)
	case "add":
		return d.add(args, out)
	case "remove":
		fs, id := productFlags("remove")
		if err := fs.Parse(args); err != nil {
			return err
		}
		d.manager.Remove(domain.ProductID(*id))
		return d.show(out)
	case "qty":
		fs, id := productFlags("qty")
		n := fs.Int("n", 1, "new quantity, <= 0 removes the item")
		if err := fs.Parse(args); err != nil {
			return err
		}
		d.manager.SetQuantity(domain.ProductID(*id), *n)
		return d.show(out)
	case "clear":
		d.manager.Clear()
		return d.show(out)
	case "show":
		return d.show(out)
	case "checkout":
		return d.checkout(ctx, out)
	default:
		return fmt.Errorf("unknown command %q: %w", command, errUsage)
	}
}

func productFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	id := fs.String("id", "", "product id")
	return fs, id
}

func (d *device) signIn(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("signin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	user := fs.String("user", "", "owner id")
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	identity := domain.Identity{OwnerID: domain.OwnerID(strings.TrimSpace(*user)), Email: *email, DisplayName: *name}
	if !identity.Authenticated() {
		return fmt.Errorf("signin: %w: -user is required", domain.ErrValidation)
	}
	if err := d.saveIdentity(ctx, identity); err != nil {
		return err
	}
	if d.controller.Reachable(ctx) {
		if err := repository.NewUsers(d.remote).EnsureUser(ctx, identity); err != nil {
			d.logger.WithError(err).Warn("failed to bootstrap user document")
		}
	}
	if _, err := d.manager.Load(ctx, identity); err != nil {
		return err
	}
	fmt.Fprintf(out, "signed in as %s (%s mode)\n", identity.OwnerID, d.manager.Mode())
	return d.show(out)
}

func (d *device) signOut(ctx context.Context, out io.Writer) error {
	if err := d.saveIdentity(ctx, domain.Anonymous()); err != nil {
		return err
	}
	if _, err := d.manager.Load(ctx, domain.Anonymous()); err != nil {
		return err
	}
	fmt.Fprintln(out, "signed out")
	return d.show(out)
}

func (d *device) add(args []string, out io.Writer) error {
	fs, id := productFlags("add")
	name := fs.String("name", "", "product name")
	price := fs.String("price", "0", "unit price, e.g. 29.99")
	image := fs.String("image", "", "image URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	amount, err := domain.ParseMoney(*price)
	if err != nil {
		return err
	}
	if _, err := d.manager.Add(domain.Product{ID: domain.ProductID(*id), Name: *name, Price: amount, Image: *image}); err != nil {
		return err
	}
	return d.show(out)
}

func (d *device) show(out io.Writer) error {
	c := d.manager.Cart()
	fmt.Fprintf(out, "cart (%s mode): %d items, total %s\n", d.manager.Mode(), c.Count(), c.Total())
	for _, item := range c.Items() {
		fmt.Fprintf(out, "  %s  %s  x%d  %s\n", item.ID, item.Name, item.Quantity, item.UnitPrice)
	}
	return nil
}

// checkout не меняет корзину: её очистит сервер после подтверждения оплаты.
func (d *device) checkout(ctx context.Context, out io.Writer) error {
	orchestrator := checkout.NewOrchestrator(d.opts.apiURL,
		checkout.WithOrigin(d.opts.origin),
		checkout.WithIDToken(d.opts.idToken),
		checkout.WithUserAgent(version.UserAgent("cli")),
		checkout.WithOrchestratorLogger(d.logger.WithField("component", "checkout-client")),
	)
	url, err := orchestrator.Initiate(ctx, d.manager.Cart(), d.manager.Identity())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "open to pay: %s\n", url)
	return nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.WarnLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
