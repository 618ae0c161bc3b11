package main

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"agrorec/internal/core"
	"agrorec/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const dateLayout = "2006-01-02"

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ", ") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// productLines is a repeatable name:quantity:instructions flag.
type productLines []core.ProductLine

func (p *productLines) String() string { return fmt.Sprint(len(*p)) }

func (p *productLines) Set(v string) error {
	parts := strings.SplitN(v, ":", 3)
	if strings.TrimSpace(parts[0]) == "" {
		return errors.New("product name required")
	}
	line := core.ProductLine{Product: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		line.Quantity = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		line.UsageInstructions = strings.TrimSpace(parts[2])
	}
	*p = append(*p, line)
	return nil
}

// readPayload loads an encoded signature or photo from path. An empty path
// yields nil.
func readPayload(path string) (*string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, err
	}
	return domain.StringPtr(strings.TrimRight(string(data), "\r\n")), nil
}

func parseDate(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("-%s: want YYYY-MM-DD: %w", name, err)
	}
	return t, nil
}

func parseStatus(v string) (core.RecommendationStatus, error) {
	status := core.RecommendationStatus(v)
	if !status.Valid() {
		return "", fmt.Errorf("unknown status %q (want %s, %s or %s)", v, core.StatusPending, core.StatusInTreatment, core.StatusFinished)
	}
	return status, nil
}

// oneArg parses fs and requires exactly one positional argument.
func oneArg(fs *flag.FlagSet, args []string, what string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", errUsage
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintf(fs.Output(), "%s: expected exactly one %s\n", fs.Name(), what)
		return "", errUsage
	}
	return fs.Arg(0), nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdCreate(ctx context.Context, a *app, args []string) error {
	fs := a.flags("create")
	var (
		rec                      core.Recommendation
		status                   string
		products                 productLines
		safety                   stringList
		farmerSig, technicianSig string
	)
	fs.StringVar(&rec.SheetNumber, "sheet", "", "sheet number")
	fs.StringVar(&rec.Farmer.Name, "farmer", "", "farmer name (required)")
	fs.StringVar(&rec.Farmer.NationalID, "national-id", "", "farmer national id")
	fs.StringVar(&rec.Farmer.Address, "address", "", "farm address")
	fs.StringVar(&rec.Farmer.Region, "region", "", "farm region")
	fs.StringVar(&rec.Technician.Name, "technician", "", "technician name")
	fs.StringVar(&rec.Technician.Phone, "technician-phone", "", "technician phone")
	fs.StringVar(&rec.Diagnosis, "diagnosis", "", "diagnosis")
	fs.StringVar(&status, "status", string(core.StatusPending), "treatment status")
	fs.Var(&products, "product", "product line as name:quantity:instructions (repeatable)")
	fs.Var(&safety, "safety", "safety recommendation (repeatable)")
	fs.StringVar(&farmerSig, "farmer-signature", "", "file holding the encoded farmer signature")
	fs.StringVar(&technicianSig, "technician-signature", "", "file holding the encoded technician signature")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	var err error
	if rec.Status, err = parseStatus(status); err != nil {
		return err
	}
	rec.ProductLines = products
	rec.SafetyRecommendations = safety
	if rec.FarmerSignature, err = readPayload(farmerSig); err != nil {
		return err
	}
	if rec.TechnicianSignature, err = readPayload(technicianSig); err != nil {
		return err
	}
	sess, err := a.session()
	if err != nil {
		return err
	}
	id, err := sess.CreateRecommendation(ctx, rec)
	if id != "" {
		_, _ = fmt.Fprintln(a.out, id)
	}
	return err
}

func cmdList(ctx context.Context, a *app, args []string) error {
	fs := a.flags("list")
	var (
		query, status, from, to string
		page, size              int
	)
	fs.StringVar(&query, "q", "", "match farmer name or national id")
	fs.StringVar(&status, "status", "", "only this treatment status")
	fs.StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	fs.StringVar(&to, "to", "", "last day, inclusive (YYYY-MM-DD)")
	fs.IntVar(&page, "page", 1, "page number")
	fs.IntVar(&size, "size", 0, "page size (default from config)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	filters := core.ListFilters{Query: query}
	var err error
	if status != "" {
		if filters.Status, err = parseStatus(status); err != nil {
			return err
		}
	}
	if filters.DateFrom, err = parseDate("from", from); err != nil {
		return err
	}
	if filters.DateTo, err = parseDate("to", to); err != nil {
		return err
	}
	sess, err := a.session()
	if err != nil {
		return err
	}
	res, err := sess.ListRecommendations(ctx, page, size, filters)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tDATE\tSTATUS\tSYNC\tFARMER\tNATIONAL ID")
	for _, rec := range res.Items {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID, rec.Date.Format(dateLayout), rec.Status, rec.SyncStatus, rec.Farmer.Name, rec.NationalID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "page %d, %d of %d records\n", res.Page, len(res.Items), res.Total)
	return err
}

func cmdShow(ctx context.Context, a *app, args []string) error {
	id, err := oneArg(a.flags("show"), args, "recommendation id")
	if err != nil {
		return err
	}
	rec, ok, err := a.svc.Recommendations().GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound{Entity: core.EntityRecommendation, ID: id}
	}
	return a.printJSON(rec)
}

func cmdLast(ctx context.Context, a *app, args []string) error {
	if err := a.flags("last").Parse(args); err != nil {
		return errUsage
	}
	sess, err := a.session()
	if err != nil {
		return err
	}
	rec, ok, err := sess.LastRecommendation(ctx)
	if err != nil {
		return err
	}
	if !ok {
		_, err = fmt.Fprintln(a.out, "no recommendations")
		return err
	}
	return a.printJSON(rec)
}

func cmdUpdate(ctx context.Context, a *app, args []string) error {
	fs := a.flags("update")
	var (
		status, sheet, diagnosis, observations string
		beforePhoto, afterPhoto                string
		farmerSig, technicianSig               string
		safety                                 stringList
	)
	fs.StringVar(&status, "status", "", "treatment status")
	fs.StringVar(&sheet, "sheet", "", "sheet number")
	fs.StringVar(&diagnosis, "diagnosis", "", "diagnosis")
	fs.StringVar(&observations, "observations", "", "follow-up observations")
	fs.StringVar(&beforePhoto, "before-photo", "", "file holding the encoded before photo")
	fs.StringVar(&afterPhoto, "after-photo", "", "file holding the encoded after photo")
	fs.StringVar(&farmerSig, "farmer-signature", "", "file holding the encoded farmer signature")
	fs.StringVar(&technicianSig, "technician-signature", "", "file holding the encoded technician signature")
	fs.Var(&safety, "safety", "replace safety recommendations (repeatable)")
	id, err := oneArg(fs, args, "recommendation id")
	if err != nil {
		return err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	current, ok, err := a.svc.Recommendations().GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound{Entity: core.EntityRecommendation, ID: id}
	}
	var patch core.RecommendationPatch
	if set["status"] {
		s, err := parseStatus(status)
		if err != nil {
			return err
		}
		patch.Status = &s
	}
	if set["sheet"] {
		patch.SheetNumber = &sheet
	}
	if set["diagnosis"] {
		patch.Diagnosis = &diagnosis
	}
	if set["safety"] {
		list := []string(safety)
		patch.SafetyRecommendations = &list
	}
	if set["observations"] || set["before-photo"] || set["after-photo"] {
		follow := current.FollowUp
		if set["observations"] {
			follow.Observations = observations
		}
		if set["before-photo"] {
			if follow.BeforePhoto, err = readPayload(beforePhoto); err != nil {
				return err
			}
		}
		if set["after-photo"] {
			if follow.AfterPhoto, err = readPayload(afterPhoto); err != nil {
				return err
			}
		}
		patch.FollowUp = &follow
	}
	if set["farmer-signature"] {
		if patch.FarmerSignature, err = readPayload(farmerSig); err != nil {
			return err
		}
	}
	if set["technician-signature"] {
		if patch.TechnicianSignature, err = readPayload(technicianSig); err != nil {
			return err
		}
	}
	updated, err := a.svc.Recommendations().Update(ctx, id, patch)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "%s %s %s\n", updated.ID, updated.Status, updated.SyncStatus)
	return err
}

func cmdDelete(ctx context.Context, a *app, args []string) error {
	id, err := oneArg(a.flags("delete"), args, "recommendation id")
	if err != nil {
		return err
	}
	return a.svc.Recommendations().Delete(ctx, id)
}

func cmdPending(ctx context.Context, a *app, args []string) error {
	if err := a.flags("pending").Parse(args); err != nil {
		return errUsage
	}
	recs, err := a.svc.Recommendations().PendingSync(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSYNC\tLAST MODIFIED")
	for _, rec := range recs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", rec.ID, rec.SyncStatus, rec.LastModifiedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func cmdSynced(ctx context.Context, a *app, args []string) error {
	fs := a.flags("synced")
	product := fs.Bool("product", false, "the id names a catalog product")
	id, err := oneArg(fs, args, "record id")
	if err != nil {
		return err
	}
	if *product {
		return a.svc.Products().MarkSynced(ctx, id)
	}
	return a.svc.Recommendations().MarkSynced(ctx, id)
}

func cmdClients(ctx context.Context, a *app, args []string) error {
	fs := a.flags("clients")
	search := fs.String("search", "", "national id or name prefix")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	var (
		clients []core.Client
		err     error
	)
	if *search != "" {
		clients, err = a.svc.Clients().Search(ctx, *search)
	} else {
		clients, err = a.svc.Clients().List(ctx)
	}
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NATIONAL ID\tNAME\tREGION\tADDRESS")
	for _, c := range clients {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.NationalID, c.Name, c.Region, c.Address)
	}
	return tw.Flush()
}

func cmdProducts(ctx context.Context, a *app, args []string) error {
	action := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		action, args = args[0], args[1:]
	}
	catalog := a.svc.Products()
	switch action {
	case "list":
		if err := a.flags("products list").Parse(args); err != nil {
			return errUsage
		}
		products, err := catalog.ListAvailable(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tNAME\tINGREDIENT\tKIND\tAVAILABLE\tSYNC")
		for _, p := range products {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", p.ID, p.Name, p.ActiveIngredient, p.Kind, p.Available, p.SyncStatus)
		}
		return tw.Flush()
	case "add":
		fs := a.flags("products add")
		ingredient := fs.String("ingredient", "", "active ingredient")
		kind := fs.String("kind", "", "product kind")
		name, err := oneArg(fs, args, "product name")
		if err != nil {
			return err
		}
		created, err := catalog.Add(ctx, core.Product{Name: name, ActiveIngredient: *ingredient, Kind: *kind})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.out, created.ID)
		return err
	case "update":
		fs := a.flags("products update")
		name := fs.String("name", "", "new name")
		ingredient := fs.String("ingredient", "", "active ingredient")
		kind := fs.String("kind", "", "product kind")
		available := fs.Bool("available", true, "offer the product")
		id, err := oneArg(fs, args, "product id")
		if err != nil {
			return err
		}
		var patch core.ProductPatch
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "name":
				patch.Name = name
			case "ingredient":
				patch.ActiveIngredient = ingredient
			case "kind":
				patch.Kind = kind
			case "available":
				patch.Available = available
			}
		})
		_, err = catalog.Update(ctx, id, patch)
		return err
	case "delete":
		id, err := oneArg(a.flags("products delete"), args, "product id")
		if err != nil {
			return err
		}
		return catalog.Delete(ctx, id)
	default:
		_, _ = fmt.Fprintf(a.errOut, "unknown products action %q (want list, add, update or delete)\n", action)
		return errUsage
	}
}

func cmdProfile(ctx context.Context, a *app, args []string) error {
	fs := a.flags("profile")
	name := fs.String("name", "", "technician display name")
	signature := fs.String("signature", "", "file holding the encoded technician signature")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	sess, err := a.session()
	if err != nil {
		return err
	}
	if *name != "" || *signature != "" {
		sig, err := readPayload(*signature)
		if err != nil {
			return err
		}
		if _, err := sess.SaveProfile(ctx, *name, sig); err != nil {
			return err
		}
	}
	profile, ok, err := sess.Profile(ctx)
	if err != nil {
		return err
	}
	if !ok {
		_, err = fmt.Fprintln(a.out, "no profile")
		return err
	}
	return a.printJSON(profile)
}

func cmdArchive(ctx context.Context, a *app, args []string) error {
	fs := a.flags("archive")
	purge := fs.Bool("purge", false, "remove the archived media instead")
	id, err := oneArg(fs, args, "recommendation id")
	if err != nil {
		return err
	}
	media, err := a.media(ctx)
	if err != nil {
		return err
	}
	if *purge {
		n, err := media.Purge(ctx, id)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(a.out, "removed %d blobs\n", n)
		return err
	}
	written, err := media.ArchiveByID(ctx, id)
	if err != nil {
		return err
	}
	for _, info := range written {
		if _, err := fmt.Fprintf(a.out, "%s\t%s\t%d\n", info.Key, info.ContentType, info.Size); err != nil {
			return err
		}
	}
	return nil
}

func cmdInfo(ctx context.Context, a *app, args []string) error {
	if err := a.flags("info").Parse(args); err != nil {
		return errUsage
	}
	store := a.svc.Store()
	pending, err := a.svc.Recommendations().PendingSync(ctx)
	if err != nil {
		return err
	}
	state := "ok"
	if _, degraded := store.(core.UnavailableStore); degraded {
		state = "unavailable"
	}
	return a.printJSON(map[string]any{
		"storageDriver": a.cfg.Storage.Driver,
		"storage":       state,
		"schemaVersion": store.SchemaVersion(),
		"pendingSync":   len(pending),
		"blobDriver":    a.cfg.Blob.Driver,
	})
}

func cmdLogout(ctx context.Context, a *app, args []string) error {
	fs := a.flags("logout")
	yes := fs.Bool("yes", false, "confirm wiping every local record")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	sess, err := a.session()
	if err != nil {
		return err
	}
	cleared, err := sess.Logout(ctx, *yes)
	if err != nil {
		return err
	}
	if !cleared {
		_, err = fmt.Fprintln(a.out, "logout not confirmed; local data kept (pass -yes)")
		return err
	}
	_, err = fmt.Fprintln(a.out, "local data cleared")
	return err
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	return mux
}

func cmdMetrics(ctx context.Context, a *app, args []string) error {
	fs := a.flags("metrics")
	addr := fs.String("addr", "127.0.0.1:9464", "listen address")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	srv := &http.Server{Addr: *addr, Handler: metricsMux(a.registry), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.log.Info("serving metrics", "addr", *addr, "expvar", a.expvar.Name())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
