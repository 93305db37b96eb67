package command

import (
	"sort"
	"strings"
)

// table maps lower-case command names to their Spec.
// Read-only rows carry a rule too so callers can report which keys a read touched.
var table = map[string]Spec{
	// Connection and server
	"ping":     {ReadOnly, None},
	"echo":     {ReadOnly, None},
	"info":     {ReadOnly, None},
	"time":     {ReadOnly, None},
	"dbsize":   {ReadOnly, None},
	"lastsave": {ReadOnly, None},
	"select":   {ReadOnly, None},
	"command":  {ReadOnly, None},
	"flushall": {FlushAll, None},
	"flushdb":  {FlushAll, None},
	"swapdb":   {FlushAll, None},

	// Transactions
	"multi":   {Transaction, None},
	"exec":    {Transaction, None},
	"discard": {Transaction, None},
	"watch":   {Transaction, None},
	"unwatch": {Transaction, None},

	// Generic keyspace
	"exists":      {ReadOnly, All},
	"type":        {ReadOnly, First},
	"ttl":         {ReadOnly, First},
	"pttl":        {ReadOnly, First},
	"expiretime":  {ReadOnly, First},
	"pexpiretime": {ReadOnly, First},
	"keys":        {ReadOnly, None},
	"scan":        {ReadOnly, None},
	"randomkey":   {ReadOnly, None},
	"dump":        {ReadOnly, First},
	"object":      {ReadOnly, ExcludeFirst},
	"touch":       {ReadOnly, All},
	"sort_ro":     {ReadOnly, First},
	"del":         {Conditional, ExcludeOptions},
	"unlink":      {Conditional, ExcludeOptions},
	"expire":      {Conditional, First},
	"pexpire":     {Conditional, First},
	"expireat":    {Conditional, First},
	"pexpireat":   {Conditional, First},
	"persist":     {Conditional, First},
	"move":        {Conditional, First},
	"rename":      {Mutating, All},
	"renamenx":    {Conditional, All},
	"copy":        {Conditional, FirstTwo},
	"restore":     {Mutating, First},
	"sort":        {Mutating, SortStore},

	// Strings
	"get":         {ReadOnly, First},
	"mget":        {ReadOnly, All},
	"strlen":      {ReadOnly, First},
	"getrange":    {ReadOnly, First},
	"substr":      {ReadOnly, First},
	"getbit":      {ReadOnly, First},
	"bitcount":    {ReadOnly, First},
	"bitpos":      {ReadOnly, First},
	"lcs":         {ReadOnly, FirstTwo},
	"set":         {Mutating, First},
	"setex":       {Mutating, First},
	"psetex":      {Mutating, First},
	"getset":      {Mutating, First},
	"getdel":      {Mutating, First},
	"getex":       {Mutating, First},
	"append":      {Mutating, First},
	"incr":        {Mutating, First},
	"decr":        {Mutating, First},
	"incrby":      {Mutating, First},
	"decrby":      {Mutating, First},
	"incrbyfloat": {Mutating, First},
	"setrange":    {Mutating, First},
	"setbit":      {Mutating, First},
	"bitop":       {Mutating, ExcludeFirst},
	"bitfield":    {Mutating, First},
	"mset":        {Mutating, Alternate},
	"setnx":       {Conditional, First},
	"msetnx":      {Conditional, Alternate},

	// Hashes
	"hget":         {ReadOnly, First},
	"hmget":        {ReadOnly, First},
	"hgetall":      {ReadOnly, First},
	"hkeys":        {ReadOnly, First},
	"hvals":        {ReadOnly, First},
	"hlen":         {ReadOnly, First},
	"hexists":      {ReadOnly, First},
	"hstrlen":      {ReadOnly, First},
	"hscan":        {ReadOnly, First},
	"hrandfield":   {ReadOnly, First},
	"hset":         {Mutating, First},
	"hmset":        {Mutating, First},
	"hincrby":      {Mutating, First},
	"hincrbyfloat": {Mutating, First},
	"hsetnx":       {Conditional, First},
	"hdel":         {Conditional, First},

	// Lists
	"llen":       {ReadOnly, First},
	"lrange":     {ReadOnly, First},
	"lindex":     {ReadOnly, First},
	"lpos":       {ReadOnly, First},
	"lpush":      {Mutating, First},
	"rpush":      {Mutating, First},
	"lpushx":     {Conditional, First},
	"rpushx":     {Conditional, First},
	"linsert":    {Conditional, First},
	"lset":       {Mutating, First},
	"ltrim":      {Mutating, First},
	"lpop":       {Mutating, First},
	"rpop":       {Mutating, First},
	"lrem":       {Conditional, First},
	"rpoplpush":  {Mutating, All},
	"brpoplpush": {Mutating, ExcludeLast},
	"lmove":      {Mutating, FirstTwo},
	"blmove":     {Mutating, FirstTwo},
	"blpop":      {Mutating, ExcludeLast},
	"brpop":      {Mutating, ExcludeLast},
	"lmpop":      {Mutating, LeadingNumKeys},
	"blmpop":     {Mutating, NumKeys},

	// Sets
	"scard":       {ReadOnly, First},
	"smembers":    {ReadOnly, First},
	"sismember":   {ReadOnly, First},
	"smismember":  {ReadOnly, First},
	"srandmember": {ReadOnly, First},
	"sinter":      {ReadOnly, All},
	"sunion":      {ReadOnly, All},
	"sdiff":       {ReadOnly, All},
	"sintercard":  {ReadOnly, ExcludeFirst},
	"sscan":       {ReadOnly, First},
	"sadd":        {Conditional, First},
	"srem":        {Conditional, First},
	"smove":       {Conditional, ExcludeLast},
	"spop":        {Mutating, First},
	"sinterstore": {Mutating, First},
	"sunionstore": {Mutating, First},
	"sdiffstore":  {Mutating, First},

	// Sorted sets
	"zcard":            {ReadOnly, First},
	"zcount":           {ReadOnly, First},
	"zlexcount":        {ReadOnly, First},
	"zrange":           {ReadOnly, First},
	"zrangebyscore":    {ReadOnly, First},
	"zrangebylex":      {ReadOnly, First},
	"zrevrange":        {ReadOnly, First},
	"zrevrangebyscore": {ReadOnly, First},
	"zrevrangebylex":   {ReadOnly, First},
	"zrank":            {ReadOnly, First},
	"zrevrank":         {ReadOnly, First},
	"zscore":           {ReadOnly, First},
	"zmscore":          {ReadOnly, First},
	"zscan":            {ReadOnly, First},
	"zrandmember":      {ReadOnly, First},
	"zadd":             {Mutating, First},
	"zincrby":          {Mutating, First},
	"zpopmin":          {Mutating, First},
	"zpopmax":          {Mutating, First},
	"bzpopmin":         {Mutating, ExcludeLast},
	"bzpopmax":         {Mutating, ExcludeLast},
	"zmpop":            {Mutating, LeadingNumKeys},
	"bzmpop":           {Mutating, NumKeys},
	"zunionstore":      {Mutating, First},
	"zinterstore":      {Mutating, First},
	"zdiffstore":       {Mutating, First},
	"zrangestore":      {Mutating, First},
	"zrem":             {Conditional, First},
	"zremrangebyscore": {Conditional, First},
	"zremrangebyrank":  {Conditional, First},
	"zremrangebylex":   {Conditional, First},

	// HyperLogLog
	"pfcount": {ReadOnly, All},
	"pfadd":   {Conditional, First},
	"pfmerge": {Mutating, All},

	// Streams
	"xlen":       {ReadOnly, First},
	"xrange":     {ReadOnly, First},
	"xrevrange":  {ReadOnly, First},
	"xread":      {ReadOnly, Streams},
	"xpending":   {ReadOnly, First},
	"xinfo":      {ReadOnly, Second},
	"xadd":       {Mutating, First},
	"xgroup":     {Mutating, Second},
	"xreadgroup": {Mutating, Streams},
	"xclaim":     {Mutating, First},
	"xautoclaim": {Mutating, First},
	"xdel":       {Conditional, First},
	"xtrim":      {Conditional, First},
	"xack":       {Conditional, First},

	// Geo
	"geopos":               {ReadOnly, First},
	"geodist":              {ReadOnly, First},
	"geohash":              {ReadOnly, First},
	"geosearch":            {ReadOnly, First},
	"georadius_ro":         {ReadOnly, First},
	"georadiusbymember_ro": {ReadOnly, First},
	"geoadd":               {Mutating, First},
	"geosearchstore":       {Mutating, First},
	"georadius":            {Mutating, GeoStore},
	"georadiusbymember":    {Mutating, GeoStore},

	// Scripting
	"eval":     {Mutating, NumKeys},
	"evalsha":  {Mutating, NumKeys},
	"fcall":    {Mutating, NumKeys},
	"eval_ro":  {ReadOnly, NumKeys},
	"fcall_ro": {ReadOnly, NumKeys},
}

// Lookup returns the Spec for a command name in any case.
func Lookup(name string) (Spec, bool) {
	spec, ok := table[strings.ToLower(name)]
	return spec, ok
}

// Classify returns the Kind for a command name, or Untracked.
func Classify(name string) Kind {
	spec, ok := Lookup(name)
	if !ok {
		return Untracked
	}
	return spec.Kind
}

// Names returns every classified command name in sorted order.
func Names() []string {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
